package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"voice-quiz-control/internal/app"
	"voice-quiz-control/internal/domain"
	"voice-quiz-control/internal/infra/memory"
	pgloader "voice-quiz-control/internal/infra/postgres"
	pgmigrations "voice-quiz-control/internal/infra/postgres/migrations"
	infraredis "voice-quiz-control/internal/infra/redis"
	"voice-quiz-control/internal/rpc"
)

func TestQuizFromPostgresThroughRedisCache(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	if err := pgloader.SeedCatalog(ctx, db, memory.DefaultCatalog()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	catalog := infraredis.NewCatalogRepository(redisClient, pgloader.NewCatalogLoader(pool), 5*time.Minute)
	modes := app.NewModeMachine(0)
	defer modes.Close()
	quiz := app.NewQuizSession(catalog)
	caller := rpc.NewLoopback(rpc.NewDispatcher(modes, quiz, nil), "voice-agent")

	loaded := call(t, caller, "load_quiz", "")
	if loaded["success"] != true || loaded["totalQuestions"] != float64(8) {
		t.Fatalf("unexpected load_quiz response %v", loaded)
	}
	if loaded["question"] != "What is the capital of France?" {
		t.Fatalf("expected catalog order from postgres, got %v", loaded)
	}

	picked := call(t, caller, "select_quiz_option", `{"option":"C"}`)
	if picked["isCorrect"] != true {
		t.Fatalf("unexpected select response %v", picked)
	}
	state := call(t, caller, "get_quiz_state", "")
	if state["score"] != float64(1) || state["selectedOption"] != "C" {
		t.Fatalf("unexpected quiz state %v", state)
	}

	// the cached copy must survive the database going away
	pool.Close()
	quiz.Reset()
	if _, err := quiz.Load(ctx); err != nil {
		t.Fatalf("reload from redis cache: %v", err)
	}
}

func TestSeedCatalogKeepsOptionOrderAndPrunes(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	db := openBun(t, ctx, pgURL)
	defer db.Close()

	if err := pgloader.SeedCatalog(ctx, db, memory.DefaultCatalog()); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}
	reordered := []domain.QuizQuestion{{
		ID:       "solo",
		Question: "Pick the last letter",
		Options: domain.Options{
			{Key: "D", Text: "dee"},
			{Key: "B", Text: "bee"},
			{Key: "A", Text: "ay"},
		},
		CorrectAnswer: "D",
	}}
	if err := pgloader.SeedCatalog(ctx, db, reordered); err != nil {
		t.Fatalf("seed replacement: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	questions, err := pgloader.NewCatalogLoader(pool).LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 1 || questions[0].ID != "solo" {
		t.Fatalf("expected the replacement catalog only, got %+v", questions)
	}
	if keys := strings.Join(questions[0].Options.Keys(), ""); keys != "DBA" {
		t.Fatalf("expected option order DBA, got %s", keys)
	}
}

func TestRedisDispatchLatchIsSharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	first, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer first.Close()
	second, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer second.Close()

	a := infraredis.NewDispatchLatch(first, time.Minute)
	b := infraredis.NewDispatchLatch(second, time.Minute)

	if ok, err := a.TryAcquire(ctx, "quiz-room/s1/1"); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := b.TryAcquire(ctx, "quiz-room/s1/1"); err != nil || ok {
		t.Fatalf("second instance must not acquire: ok=%v err=%v", ok, err)
	}
	if err := a.Release(ctx, "quiz-room/s1/1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := b.TryAcquire(ctx, "quiz-room/s1/1"); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func call(t *testing.T, caller *rpc.Loopback, method, payload string) map[string]any {
	t.Helper()
	raw, err := caller.PerformRPC(context.Background(), method, payload)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("%s: decode %q: %v", method, raw, err)
	}
	return out
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
