package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voice-quiz-control/internal/app"
	"voice-quiz-control/internal/domain"
	"voice-quiz-control/internal/room"
)

// Method names callable by the agent.
const (
	MethodSetMode      = "set_mode"
	MethodGetMode      = "get_mode"
	MethodLoadQuiz     = "load_quiz"
	MethodSelectOption = "select_option"
	MethodNextQuestion = "next_question"
	MethodGetQuizState = "get_quiz_state"
)

type handlerFunc func(ctx context.Context, p params) result

// Dispatcher binds the remote-callable operations to the mode and quiz state machines.
// Handlers read and write the machines directly; responses are always JSON text with a
// "success" flag, and no error or panic escapes to the transport.
type Dispatcher struct {
	modes *app.ModeMachine
	quiz  *app.QuizSession
	log   *slog.Logger

	methods  []string
	handlers map[string]handlerFunc
}

func NewDispatcher(modes *app.ModeMachine, quiz *app.QuizSession, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		modes: modes,
		quiz:  quiz,
		log:   logger.With("component", "rpc"),
	}
	d.methods = []string{
		MethodSetMode,
		MethodGetMode,
		MethodLoadQuiz,
		MethodSelectOption,
		MethodNextQuestion,
		MethodGetQuizState,
	}
	d.handlers = map[string]handlerFunc{
		MethodSetMode:      d.setMode,
		MethodGetMode:      d.getMode,
		MethodLoadQuiz:     d.loadQuiz,
		MethodSelectOption: d.selectOption,
		MethodNextQuestion: d.nextQuestion,
		MethodGetQuizState: d.getQuizState,
	}
	return d
}

// Methods lists the operation names in registration order.
func (d *Dispatcher) Methods() []string {
	out := make([]string, len(d.methods))
	copy(out, d.methods)
	return out
}

// Register binds every operation on r. It is called once per session.
func (d *Dispatcher) Register(r room.RPCRegistrar) error {
	for _, name := range d.methods {
		method := name
		err := r.RegisterRPCMethod(method, func(ctx context.Context, req room.RPCRequest) (string, error) {
			req.Method = method
			return d.Handle(ctx, req), nil
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", method, err)
		}
	}
	d.log.Info("rpc methods registered", "methods", strings.Join(d.methods, ", "))
	return nil
}

// Handle runs one call and returns the encoded response.
func (d *Dispatcher) Handle(ctx context.Context, req room.RPCRequest) (resp string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("rpc handler panicked", "method", req.Method, "request", req.RequestID, "caller", req.CallerIdentity, "panic", r)
			resp = encode(failure(fmt.Sprintf("Internal error in %s: %v", req.Method, r)))
		}
	}()

	h, ok := d.handlers[req.Method]
	if !ok {
		return d.finish(req, failure(fmt.Sprintf("Unknown method: %s", req.Method)))
	}
	p, err := decodePayload(req.Payload)
	if err != nil {
		return d.finish(req, failure(fmt.Sprintf("Invalid request payload: %v", err)))
	}
	return d.finish(req, h(ctx, p))
}

func (d *Dispatcher) finish(req room.RPCRequest, r result) string {
	out := encode(r)
	if r.succeeded() {
		d.log.Debug("rpc call handled", "method", req.Method, "request", req.RequestID, "caller", req.CallerIdentity)
	} else {
		d.log.Info("rpc call rejected", "method", req.Method, "request", req.RequestID, "caller", req.CallerIdentity, "response", out)
	}
	return out
}

func (d *Dispatcher) setMode(_ context.Context, p params) result {
	raw, ok := p.str("mode")
	if !ok {
		return failure("Missing 'mode' parameter")
	}
	mode := domain.UIMode(raw)
	if !mode.Valid() {
		return failure(fmt.Sprintf("Invalid mode: %s. Valid modes are: %s", raw, domain.ModeNames()))
	}
	d.modes.SetMode(mode)
	return modeResponse{envelope: success, Mode: mode}
}

func (d *Dispatcher) getMode(_ context.Context, _ params) result {
	return modeResponse{envelope: success, Mode: d.modes.Mode()}
}

func (d *Dispatcher) loadQuiz(ctx context.Context, _ params) result {
	state, err := d.quiz.Load(ctx)
	if err != nil {
		return failure(fmt.Sprintf("Failed to load quiz: %v", err))
	}
	q, ok := state.CurrentQuestion()
	if !ok {
		return failure("Quiz loaded but no question is available")
	}
	return loadQuizResponse{
		envelope:       success,
		Message:        fmt.Sprintf("Quiz loaded with %d questions", state.TotalQuestions),
		Question:       q.Question,
		Options:        q.Options,
		QuestionNumber: state.CurrentQuestionIndex + 1,
		TotalQuestions: state.TotalQuestions,
	}
}

func (d *Dispatcher) selectOption(_ context.Context, p params) result {
	raw, ok := p.str("option")
	if !ok {
		return failure("Missing 'option' parameter")
	}
	key := strings.ToUpper(strings.TrimSpace(raw))
	if !domain.ValidOptionKey(key) {
		return failure(fmt.Sprintf("Invalid option: %s. Valid options are: %s", raw, strings.Join(domain.OptionKeys, ", ")))
	}

	state, err := d.quiz.Answer(key)
	switch {
	case errors.Is(err, domain.ErrNoActiveQuestion):
		return failure("No active quiz question. Load a quiz first")
	case errors.Is(err, domain.ErrAlreadyAnswered):
		recorded, _ := state.CurrentQuestion()
		return selectOptionResponse{
			envelope:        success,
			Option:          state.SelectedOption,
			IsCorrect:       state.SelectedOption == recorded.CorrectAnswer,
			CorrectAnswer:   recorded.CorrectAnswer,
			AlreadyAnswered: true,
		}
	case errors.Is(err, domain.ErrOptionNotOffered):
		q, _ := state.CurrentQuestion()
		return failure(fmt.Sprintf("Option %s is not available for this question. Available options are: %s", key, strings.Join(q.Options.Keys(), ", ")))
	case err != nil:
		return failure(err.Error())
	}

	// selecting never moves the index, so this is the question that was graded
	graded, _ := state.CurrentQuestion()
	return selectOptionResponse{
		envelope:      success,
		Option:        key,
		IsCorrect:     key == graded.CorrectAnswer,
		CorrectAnswer: graded.CorrectAnswer,
	}
}

func (d *Dispatcher) nextQuestion(_ context.Context, _ params) result {
	state := d.quiz.NextQuestion()
	switch state.Status {
	case domain.QuizCompleted:
		return quizCompletedResponse{
			envelope:       success,
			Message:        "Quiz completed",
			Score:          state.Score,
			TotalQuestions: state.TotalQuestions,
		}
	case domain.QuizActive:
		q, ok := state.CurrentQuestion()
		if !ok {
			return failure("No question available after advancing")
		}
		number := state.CurrentQuestionIndex + 1
		return nextQuestionResponse{
			envelope:             success,
			Message:              fmt.Sprintf("Moved to question %d of %d", number, state.TotalQuestions),
			Question:             q.Question,
			Options:              q.Options,
			QuestionNumber:       number,
			CurrentQuestionIndex: state.CurrentQuestionIndex,
		}
	default:
		return failure("No active quiz. Load a quiz first")
	}
}

func (d *Dispatcher) getQuizState(_ context.Context, _ params) result {
	return quizStateResponse{
		envelope:      success,
		QuizStateView: NewQuizStateView(d.quiz.Snapshot()),
	}
}
