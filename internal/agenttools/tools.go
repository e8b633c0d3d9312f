// Package agenttools holds the functions the voice agent's language model can call.
// Each tool performs one or two RPC operations and phrases the outcome as a sentence
// the agent can speak.
package agenttools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voice-quiz-control/internal/domain"
	"voice-quiz-control/internal/rpc"
)

// ErrUnknownTool is returned by Run for a name that is not in the toolkit.
var ErrUnknownTool = errors.New("unknown agent tool")

// Caller performs a remote call against the UI and returns the response text.
type Caller interface {
	PerformRPC(ctx context.Context, method, payload string) (string, error)
}

// Tool describes one callable function.
type Tool struct {
	Name        string
	Description string
	// Args names the string arguments the tool reads.
	Args []string

	run func(ctx context.Context, args map[string]string) string
}

// Toolkit binds the tools to a caller.
type Toolkit struct {
	caller Caller
	log    *slog.Logger
	tools  []Tool
	byName map[string]int
}

func New(caller Caller, logger *slog.Logger) *Toolkit {
	if logger == nil {
		logger = slog.Default()
	}
	k := &Toolkit{caller: caller, log: logger.With("component", "agenttools")}
	k.tools = []Tool{
		{Name: "show_quiz", Description: "Show a quiz interface to the user.", run: k.showQuiz},
		{Name: "show_table", Description: "Show a table interface to the user.", run: k.showTable},
		{Name: "show_blank", Description: "Clear the screen and show a blank interface.", run: k.showBlank},
		{Name: "get_current_mode", Description: "Get the current UI mode that is being displayed to the user.", run: k.getCurrentMode},
		{Name: "request_quiz", Description: "Load and display a quiz to the user.", run: k.requestQuiz},
		{Name: "select_quiz_option", Description: "Select an option (A, B, C, or D) for the current quiz question.", Args: []string{"option"}, run: k.selectQuizOption},
		{Name: "next_quiz_question", Description: "Move to the next question in the quiz. Returns the question now displayed.", run: k.nextQuizQuestion},
		{Name: "get_quiz_state", Description: "Get the current state of the quiz, including the current question, selected option, and score.", run: k.getQuizState},
	}
	k.byName = make(map[string]int, len(k.tools))
	for i, t := range k.tools {
		k.byName[t.Name] = i
	}
	return k
}

// Tools lists the tools in a stable order.
func (k *Toolkit) Tools() []Tool {
	out := make([]Tool, len(k.tools))
	copy(out, k.tools)
	return out
}

// Run invokes the named tool.
func (k *Toolkit) Run(ctx context.Context, name string, args map[string]string) (string, error) {
	i, ok := k.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return k.tools[i].run(ctx, args), nil
}

type questionData struct {
	Question string         `json:"question"`
	Options  domain.Options `json:"options"`
}

// rpcResult is the union of every response shape the dispatcher produces.
type rpcResult struct {
	Success              bool           `json:"success"`
	Error                string         `json:"error"`
	Mode                 string         `json:"mode"`
	Message              string         `json:"message"`
	Question             string         `json:"question"`
	Options              domain.Options `json:"options"`
	QuestionNumber       int            `json:"questionNumber"`
	CurrentQuestionIndex *int           `json:"currentQuestionIndex"`
	TotalQuestions       int            `json:"totalQuestions"`
	Score                int            `json:"score"`
	IsCorrect            bool           `json:"isCorrect"`
	CorrectAnswer        string         `json:"correctAnswer"`
	Option               string         `json:"option"`
	AlreadyAnswered      bool           `json:"alreadyAnswered"`
	QuizStatus           string         `json:"quizStatus"`
	SelectedOption       *string        `json:"selectedOption"`
	CurrentQuestion      *questionData  `json:"currentQuestion"`
}

func (r rpcResult) errorText() string {
	if r.Error == "" {
		return "Unknown error"
	}
	return r.Error
}

func (k *Toolkit) call(ctx context.Context, method string, payload map[string]string) rpcResult {
	if payload == nil {
		payload = map[string]string{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return rpcResult{Error: err.Error()}
	}
	raw, err := k.caller.PerformRPC(ctx, method, string(body))
	if err != nil {
		k.log.Error("rpc call failed", "method", method, "error", err)
		return rpcResult{Error: err.Error()}
	}
	if raw == "" {
		return rpcResult{Error: "Empty response from RPC call"}
	}
	var res rpcResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		// a non-JSON answer still means the call went through
		k.log.Warn("non-JSON rpc response", "method", method, "response", raw)
		return rpcResult{Success: true}
	}
	return res
}

func (k *Toolkit) setMode(ctx context.Context, mode domain.UIMode) rpcResult {
	return k.call(ctx, rpc.MethodSetMode, map[string]string{"mode": string(mode)})
}

func (k *Toolkit) showQuiz(ctx context.Context, _ map[string]string) string {
	if res := k.setMode(ctx, domain.ModeQuiz); !res.Success {
		return "Failed to show quiz: " + res.errorText()
	}
	return "Quiz interface is now displayed. You can ask the user if they want to start a quiz."
}

func (k *Toolkit) showTable(ctx context.Context, _ map[string]string) string {
	if res := k.setMode(ctx, domain.ModeTable); !res.Success {
		return "Failed to show table: " + res.errorText()
	}
	return "Table interface is now displayed."
}

func (k *Toolkit) showBlank(ctx context.Context, _ map[string]string) string {
	if res := k.setMode(ctx, domain.ModeBlank); !res.Success {
		return "Failed to clear screen: " + res.errorText()
	}
	return "Screen is now cleared and showing a blank interface."
}

func (k *Toolkit) getCurrentMode(ctx context.Context, _ map[string]string) string {
	res := k.call(ctx, rpc.MethodGetMode, nil)
	if !res.Success {
		return "Failed to get current mode: " + res.errorText()
	}
	mode := res.Mode
	if mode == "" {
		mode = "unknown"
	}
	return "The current UI mode is: " + mode
}

func (k *Toolkit) requestQuiz(ctx context.Context, _ map[string]string) string {
	if res := k.setMode(ctx, domain.ModeQuiz); !res.Success {
		return "Failed to switch to quiz mode: " + res.errorText()
	}
	res := k.call(ctx, rpc.MethodLoadQuiz, nil)
	if !res.Success {
		return "Failed to load quiz: " + res.errorText()
	}
	return fmt.Sprintf("Quiz loaded! Current question: %s Options: %s", res.Question, listOptions(res.Options))
}

func (k *Toolkit) selectQuizOption(ctx context.Context, args map[string]string) string {
	option := args["option"]
	res := k.call(ctx, rpc.MethodSelectOption, map[string]string{"option": option})
	if !res.Success {
		return "Failed to select option: " + res.errorText()
	}
	if res.AlreadyAnswered {
		return fmt.Sprintf("This question was already answered with option %s; the answer stands. The correct answer is %s. Move to the next question to continue.", res.Option, res.CorrectAnswer)
	}
	if res.IsCorrect {
		return fmt.Sprintf("Correct! You selected option %s, which is the right answer.", option)
	}
	return fmt.Sprintf("Not quite. You selected option %s, but the correct answer is %s.", option, res.CorrectAnswer)
}

func (k *Toolkit) nextQuizQuestion(ctx context.Context, _ map[string]string) string {
	res := k.call(ctx, rpc.MethodNextQuestion, nil)
	if !res.Success {
		return "Failed to move to next question: " + res.errorText()
	}
	if res.Message == "Quiz completed" {
		return fmt.Sprintf("Quiz completed! You scored %d out of %d (%d%%). Great job!",
			res.Score, res.TotalQuestions, percentage(res.Score, res.TotalQuestions))
	}
	index := res.QuestionNumber - 1
	if res.CurrentQuestionIndex != nil {
		index = *res.CurrentQuestionIndex
	}
	return fmt.Sprintf("Successfully moved to question %d (index %d). The current question displayed is: %s Options: %s. Please read this question to the user.",
		res.QuestionNumber, index, res.Question, listOptions(res.Options))
}

func (k *Toolkit) getQuizState(ctx context.Context, _ map[string]string) string {
	res := k.call(ctx, rpc.MethodGetQuizState, nil)
	if !res.Success {
		return "Failed to get quiz state: " + res.errorText()
	}

	index := 0
	if res.CurrentQuestionIndex != nil {
		index = *res.CurrentQuestionIndex
	}
	switch domain.QuizStatus(res.QuizStatus) {
	case domain.QuizIdle:
		return "No quiz is currently active. Use request_quiz to start a quiz."
	case domain.QuizCompleted:
		return fmt.Sprintf("Quiz completed. Final score: %d out of %d.", res.Score, res.TotalQuestions)
	}

	if res.CurrentQuestion == nil {
		return fmt.Sprintf("Quiz is active but no question data available. Question %d of %d (index %d). Score: %d/%d",
			index+1, res.TotalQuestions, index, res.Score, res.TotalQuestions)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT QUIZ STATE - Question %d of %d (index %d): %s Options: %s. ",
		index+1, res.TotalQuestions, index, res.CurrentQuestion.Question, listOptions(res.CurrentQuestion.Options))
	if res.SelectedOption != nil && *res.SelectedOption != "" {
		fmt.Fprintf(&b, "User has selected: %s. ", *res.SelectedOption)
	}
	fmt.Fprintf(&b, "Current score: %d/%d", res.Score, res.TotalQuestions)
	return b.String()
}

func listOptions(opts domain.Options) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		parts = append(parts, o.Key+": "+o.Text)
	}
	return strings.Join(parts, ", ")
}

func percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return score * 100 / total
}
