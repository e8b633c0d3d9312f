package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"voice-quiz-control/internal/app"
	"voice-quiz-control/internal/domain"
	"voice-quiz-control/internal/infra/memory"
)

func TestLoadActivatesFreshSession(t *testing.T) {
	session := newTestSession()

	state := session.Snapshot()
	if state.Status != domain.QuizIdle || len(state.Questions) != 0 || state.Score != 0 || state.HasAnswered() {
		t.Fatalf("expected idle initial state, got %+v", state)
	}

	state, err := session.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Status != domain.QuizActive || state.CurrentQuestionIndex != 0 || state.Score != 0 || state.TotalQuestions != 8 {
		t.Fatalf("unexpected loaded state %+v", state)
	}
	q, ok := session.CurrentQuestion()
	if !ok || q.Question != "What is the capital of France?" {
		t.Fatalf("expected first catalog question, got %+v", q)
	}
}

func TestSelectOptionGradesOnce(t *testing.T) {
	session := newTestSession()
	mustLoad(t, session)

	state, accepted := session.SelectOption("C")
	if !accepted || state.Score != 1 || state.SelectedOption != "C" {
		t.Fatalf("expected graded correct answer, got accepted=%v %+v", accepted, state)
	}

	state, accepted = session.SelectOption("A")
	if accepted {
		t.Fatalf("expected second selection to be ignored")
	}
	if state.SelectedOption != "C" || state.Score != 1 {
		t.Fatalf("expected selection and score unchanged, got %+v", state)
	}
	if correct, answered := session.IsAnswerCorrect(); !correct || !answered {
		t.Fatalf("expected recorded answer to be correct, got correct=%v answered=%v", correct, answered)
	}
}

func TestAnswerRefusalReasons(t *testing.T) {
	session := newTestSession()

	if _, err := session.Answer("A"); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected no active question on idle session, got %v", err)
	}

	mustLoad(t, session)
	if _, err := session.Answer("A"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := session.Answer("B"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
}

func TestAnswerRejectsKeyNotOffered(t *testing.T) {
	catalog := []domain.QuizQuestion{{
		ID:            "yn",
		Question:      "Is water wet?",
		Options:       domain.Options{{Key: "A", Text: "Yes"}, {Key: "B", Text: "No"}},
		CorrectAnswer: "A",
	}}
	session := app.NewQuizSession(memory.NewCatalogRepository(memory.NewStaticCatalogLoader(catalog), 0))
	mustLoad(t, session)

	state, err := session.Answer("D")
	if !errors.Is(err, domain.ErrOptionNotOffered) {
		t.Fatalf("expected option not offered, got %v", err)
	}
	if state.HasAnswered() {
		t.Fatalf("expected no answer recorded")
	}
}

func TestNextQuestionCompletesAtLastIndex(t *testing.T) {
	session := newTestSession()
	mustLoad(t, session)

	for i := 1; i < 8; i++ {
		state := session.NextQuestion()
		if state.Status != domain.QuizActive || state.CurrentQuestionIndex != i {
			t.Fatalf("step %d: unexpected state %+v", i, state)
		}
	}
	session.SelectOption("C")

	state := session.NextQuestion()
	if state.Status != domain.QuizCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.CurrentQuestionIndex != 7 || state.HasAnswered() {
		t.Fatalf("expected pinned index 7 and cleared selection, got %+v", state)
	}
	if state.Score != 1 {
		t.Fatalf("expected final score 1, got %d", state.Score)
	}

	if _, accepted := session.SelectOption("C"); accepted {
		t.Fatalf("expected selection on completed quiz to be ignored")
	}
}

func TestNextQuestionOnIdleIsIgnored(t *testing.T) {
	session := newTestSession()
	state := session.NextQuestion()
	if state.Status != domain.QuizIdle || state.CurrentQuestionIndex != 0 {
		t.Fatalf("expected idle state untouched, got %+v", state)
	}
}

func TestScoreNeverExceedsCorrectSelections(t *testing.T) {
	session := newTestSession()
	mustLoad(t, session)

	catalog := memory.DefaultCatalog()
	picks := []string{"C", "A", "D", "D", "C", "B", "C", "A"}
	correct := 0
	lastScore := 0
	for i, pick := range picks {
		if pick == catalog[i].CorrectAnswer {
			correct++
		}
		session.SelectOption(pick)
		// a later pick of the right answer must never count
		state, _ := session.SelectOption(catalog[i].CorrectAnswer)
		if state.Score < lastScore {
			t.Fatalf("score decreased from %d to %d", lastScore, state.Score)
		}
		if state.Score > correct {
			t.Fatalf("score %d exceeds correct selections %d", state.Score, correct)
		}
		lastScore = state.Score
		session.NextQuestion()
	}
	if lastScore != correct {
		t.Fatalf("expected final score %d, got %d", correct, lastScore)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	session := newTestSession()
	mustLoad(t, session)
	session.SelectOption("C")

	state := session.Reset()
	if state.Status != domain.QuizIdle || state.Score != 0 || state.TotalQuestions != 0 || state.HasAnswered() || len(state.Questions) != 0 {
		t.Fatalf("expected idle defaults, got %+v", state)
	}
}

func TestLoadPropagatesCatalogErrors(t *testing.T) {
	session := app.NewQuizSession(memory.NewCatalogRepository(memory.NewStaticCatalogLoader(nil), 0))
	if _, err := session.Load(context.Background()); !errors.Is(err, domain.ErrCatalogNotFound) {
		t.Fatalf("expected catalog not found, got %v", err)
	}
	if session.Snapshot().Status != domain.QuizIdle {
		t.Fatalf("expected session to stay idle after failed load")
	}
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	session := newTestSession()
	mustLoad(t, session)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 1)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := session.Snapshot()
				bad := (s.Status == domain.QuizActive && (s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= s.TotalQuestions)) ||
					(s.Status == domain.QuizCompleted && (s.CurrentQuestionIndex != s.TotalQuestions-1 || s.HasAnswered()))
				if bad {
					select {
					case errs <- "inconsistent snapshot":
					default:
					}
					return
				}
			}
		}()
	}

	for round := 0; round < 50; round++ {
		mustLoad(t, session)
		for i := 0; i < 8; i++ {
			session.SelectOption("C")
			session.NextQuestion()
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-errs:
		t.Fatalf("%s", msg)
	default:
	}
}

func newTestSession() *app.QuizSession {
	loader := memory.NewStaticCatalogLoader(memory.DefaultCatalog())
	return app.NewQuizSession(memory.NewCatalogRepository(loader, 0))
}

func mustLoad(t *testing.T, session *app.QuizSession) {
	t.Helper()
	if _, err := session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
}
