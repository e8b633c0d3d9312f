package domain

import "strings"

// UIMode is the screen currently selected for display.
type UIMode string

const (
	ModeBlank       UIMode = "blank"
	ModeQuiz        UIMode = "quiz"
	ModeTable       UIMode = "table"
	ModePlaceholder UIMode = "placeholder"
)

// AllModes lists every mode in display order. Validation and error text both read from it,
// so a new mode only needs to be added here and in the renderer.
func AllModes() []UIMode {
	return []UIMode{ModeBlank, ModeQuiz, ModeTable, ModePlaceholder}
}

// Valid reports whether m is one of AllModes.
func (m UIMode) Valid() bool {
	for _, candidate := range AllModes() {
		if m == candidate {
			return true
		}
	}
	return false
}

// ModeNames joins the mode names for error messages.
func ModeNames() string {
	names := make([]string, 0, len(AllModes()))
	for _, m := range AllModes() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// QuizStatus is the lifecycle stage of a quiz session.
type QuizStatus string

const (
	QuizIdle      QuizStatus = "idle"
	QuizActive    QuizStatus = "active"
	QuizCompleted QuizStatus = "completed"
)

// OptionKeys are the answer keys a question may offer, in display order.
var OptionKeys = []string{"A", "B", "C", "D"}

// ValidOptionKey reports whether key is one of OptionKeys. Keys are case-sensitive here;
// callers normalize user input first.
func ValidOptionKey(key string) bool {
	for _, k := range OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// QuizQuestion is an immutable catalog entry.
type QuizQuestion struct {
	ID            string  `json:"id" yaml:"id"`
	Question      string  `json:"question" yaml:"question"`
	Options       Options `json:"options" yaml:"options"`
	CorrectAnswer string  `json:"correctAnswer" yaml:"correctAnswer"`
}

// QuizState is a snapshot of the quiz session. SelectedOption is empty while no answer
// has been recorded for the current question.
type QuizState struct {
	Questions            []QuizQuestion
	CurrentQuestionIndex int
	SelectedOption       string
	Status               QuizStatus
	Score                int
	TotalQuestions       int
}

// IdleQuizState is the state a session starts in and returns to on reset.
func IdleQuizState() QuizState {
	return QuizState{Status: QuizIdle}
}

// CurrentQuestion returns the question at the current index, if any.
func (s QuizState) CurrentQuestion() (QuizQuestion, bool) {
	if len(s.Questions) == 0 || s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return QuizQuestion{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// HasAnswered reports whether the current question already has a recorded answer.
func (s QuizState) HasAnswered() bool {
	return s.SelectedOption != ""
}
