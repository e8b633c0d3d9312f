package app

import (
	"context"
	"sync"

	"voice-quiz-control/internal/domain"
)

// CatalogRepository loads the ordered quiz catalog (from cache/backing store).
type CatalogRepository interface {
	GetCatalog(ctx context.Context) ([]domain.QuizQuestion, error)
}

// QuizSession is the quiz state machine. It is the single source of truth for quiz
// progress: every mutation replaces the whole snapshot under the lock, and every read
// observes the latest committed snapshot.
type QuizSession struct {
	catalog CatalogRepository

	mu    sync.RWMutex
	state domain.QuizState
}

func NewQuizSession(catalog CatalogRepository) *QuizSession {
	return &QuizSession{
		catalog: catalog,
		state:   domain.IdleQuizState(),
	}
}

// Load replaces the session with a fresh copy of the catalog and activates it.
func (s *QuizSession) Load(ctx context.Context) (domain.QuizState, error) {
	questions, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return s.Snapshot(), err
	}
	if len(questions) == 0 {
		return s.Snapshot(), domain.ErrEmptyCatalog
	}

	next := domain.QuizState{
		Questions:            domain.CloneQuestions(questions),
		CurrentQuestionIndex: 0,
		Status:               domain.QuizActive,
		Score:                0,
		TotalQuestions:       len(questions),
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return next, nil
}

// SelectOption records key as the answer to the current question and grades it.
// The call is ignored (accepted=false) unless the quiz is active and unanswered.
func (s *QuizSession) SelectOption(key string) (domain.QuizState, bool) {
	state, err := s.Answer(key)
	return state, err == nil
}

// Answer is SelectOption with the reason for a refusal: ErrNoActiveQuestion,
// ErrAlreadyAnswered or ErrOptionNotOffered. A refused call leaves the state unchanged.
func (s *QuizSession) Answer(key string) (domain.QuizState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev.Status != domain.QuizActive {
		return prev, domain.ErrNoActiveQuestion
	}
	if prev.HasAnswered() {
		return prev, domain.ErrAlreadyAnswered
	}
	question, ok := prev.CurrentQuestion()
	if !ok {
		return prev, domain.ErrNoActiveQuestion
	}
	if _, offered := question.Options.Text(key); !offered {
		return prev, domain.ErrOptionNotOffered
	}

	// grade against the question at the pre-mutation index
	next := prev
	next.SelectedOption = key
	if key == question.CorrectAnswer {
		next.Score = prev.Score + 1
	}
	s.state = next
	return next, nil
}

// NextQuestion advances to the next question, or completes the quiz when the current
// question is the last one. Idle sessions are left untouched.
func (s *QuizSession) NextQuestion() domain.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev.Status == domain.QuizIdle || prev.TotalQuestions == 0 {
		return prev
	}

	next := prev
	next.SelectedOption = ""
	if prev.CurrentQuestionIndex+1 >= prev.TotalQuestions {
		next.Status = domain.QuizCompleted
		next.CurrentQuestionIndex = prev.TotalQuestions - 1
	} else {
		next.CurrentQuestionIndex = prev.CurrentQuestionIndex + 1
	}
	s.state = next
	return next
}

// Reset returns the session to idle.
func (s *QuizSession) Reset() domain.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.IdleQuizState()
	return s.state
}

// Snapshot returns the latest committed state. Question records are immutable after
// Load, so the returned slice may be shared.
func (s *QuizSession) Snapshot() domain.QuizState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentQuestion returns the question at the current index.
func (s *QuizSession) CurrentQuestion() (domain.QuizQuestion, bool) {
	return s.Snapshot().CurrentQuestion()
}

// HasAnswered gates the option buttons and the Next control.
func (s *QuizSession) HasAnswered() bool {
	return s.Snapshot().HasAnswered()
}

// IsAnswerCorrect grades the recorded answer. answered is false while no answer exists.
func (s *QuizSession) IsAnswerCorrect() (correct bool, answered bool) {
	state := s.Snapshot()
	if !state.HasAnswered() {
		return false, false
	}
	question, ok := state.CurrentQuestion()
	if !ok {
		return false, false
	}
	return state.SelectedOption == question.CorrectAnswer, true
}
