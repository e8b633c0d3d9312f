package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voice-quiz-control/internal/agenttools"
	"voice-quiz-control/internal/app"
	"voice-quiz-control/internal/config"
	"voice-quiz-control/internal/controlplane"
	"voice-quiz-control/internal/infra/memory"
	pgloader "voice-quiz-control/internal/infra/postgres"
	rediscache "voice-quiz-control/internal/infra/redis"
	"voice-quiz-control/internal/livekit"
	"voice-quiz-control/internal/rpc"
	transport "voice-quiz-control/internal/transport/http"
)

const agentCallerIdentity = "voice-agent"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the control plane server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, *port, log)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, source, err := catalogLoader(cfg, pool)
	if err != nil {
		return err
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = rediscache.NewCatalogRepository(redisClient, loader, quizTTL)
	} else {
		catalog = memory.NewCatalogRepository(loader, quizTTL)
	}

	var latch controlplane.DispatchLatch = memory.NewDispatchLatch()
	if redisClient != nil {
		latch = rediscache.NewDispatchLatch(redisClient, config.TTLDuration(cfg.Redis.TTL, time.Hour))
	}

	modes := app.NewModeMachine(config.TTLDuration(cfg.UI.ModeDebounce, 300*time.Millisecond))
	defer modes.Close()
	quiz := app.NewQuizSession(catalog)
	dispatcher := rpc.NewDispatcher(modes, quiz, log)

	tokens := livekit.NewTokenIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, config.TTLDuration(cfg.LiveKit.TokenTTL, livekit.DefaultTokenTTL))
	agents := livekit.NewDispatchClient(cfg.LiveKit.URL, cfg.LiveKit.AgentName, tokens, nil)
	if !agents.Configured() {
		log.Warn("livekit credentials missing; token and dispatch endpoints will refuse requests")
	}

	srv := transport.NewServer(transport.Deps{
		Modes:      modes,
		Quiz:       quiz,
		Dispatcher: dispatcher,
		Tools:      agenttools.New(rpc.NewLoopback(dispatcher, agentCallerIdentity), log),
		Tokens:     tokens,
		Agents:     agents,
		Latch:      latch,
		Logger:     log,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting control plane", "port", finalPort, "catalog", source, "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// catalogLoader picks the question source: Postgres, then the YAML catalog file, then
// the built-in set.
func catalogLoader(cfg config.Config, pool *pgxpool.Pool) (memory.CatalogLoader, string, error) {
	if pool != nil {
		return pgloader.NewCatalogLoader(pool), "postgres", nil
	}
	if cfg.Quiz.Catalog != "" {
		questions, err := config.LoadCatalogFile(cfg.Quiz.Catalog)
		switch {
		case err == nil:
			return memory.NewStaticCatalogLoader(questions), cfg.Quiz.Catalog, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, "", err
		}
	}
	return memory.NewStaticCatalogLoader(memory.DefaultCatalog()), "built-in", nil
}
