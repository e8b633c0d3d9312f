package rpc

import (
	"encoding/json"

	"voice-quiz-control/internal/domain"
)

// Every response embeds envelope first so "success" leads the encoded object.
type envelope struct {
	Success bool `json:"success"`
}

func (e envelope) succeeded() bool { return e.Success }

type result interface {
	succeeded() bool
}

var success = envelope{Success: true}

type failureResponse struct {
	envelope
	Error string `json:"error"`
}

func failure(msg string) failureResponse {
	return failureResponse{Error: msg}
}

type modeResponse struct {
	envelope
	Mode domain.UIMode `json:"mode"`
}

type loadQuizResponse struct {
	envelope
	Message        string         `json:"message"`
	Question       string         `json:"question"`
	Options        domain.Options `json:"options"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
}

type selectOptionResponse struct {
	envelope
	Option          string `json:"option"`
	IsCorrect       bool   `json:"isCorrect"`
	CorrectAnswer   string `json:"correctAnswer"`
	// AlreadyAnswered marks a pick that was ignored; Option is the recorded answer.
	AlreadyAnswered bool   `json:"alreadyAnswered,omitempty"`
}

type quizCompletedResponse struct {
	envelope
	Message        string `json:"message"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
}

type nextQuestionResponse struct {
	envelope
	Message              string         `json:"message"`
	Question             string         `json:"question"`
	Options              domain.Options `json:"options"`
	QuestionNumber       int            `json:"questionNumber"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
}

type quizStateResponse struct {
	envelope
	QuizStateView
}

// QuizStateView is the wire shape of a quiz snapshot, shared by get_quiz_state and the HTTP state endpoint.
type QuizStateView struct {
	QuizStatus           domain.QuizStatus `json:"quizStatus"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	TotalQuestions       int               `json:"totalQuestions"`
	SelectedOption       *string           `json:"selectedOption"`
	Score                int               `json:"score"`
	HasAnswered          bool              `json:"hasAnswered"`
	CurrentQuestion      *QuestionView     `json:"currentQuestion"`
}

type QuestionView struct {
	Question      string         `json:"question"`
	Options       domain.Options `json:"options"`
	CorrectAnswer string         `json:"correctAnswer"`
}

// NewQuizStateView converts a snapshot; the unset selection and a missing question encode as null.
func NewQuizStateView(state domain.QuizState) QuizStateView {
	view := QuizStateView{
		QuizStatus:           state.Status,
		CurrentQuestionIndex: state.CurrentQuestionIndex,
		TotalQuestions:       state.TotalQuestions,
		Score:                state.Score,
		HasAnswered:          state.HasAnswered(),
	}
	if state.HasAnswered() {
		selected := state.SelectedOption
		view.SelectedOption = &selected
	}
	if q, ok := state.CurrentQuestion(); ok {
		view.CurrentQuestion = &QuestionView{
			Question:      q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		}
	}
	return view
}

const encodeFailure = `{"success":false,"error":"failed to encode response"}`

func encode(r result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return encodeFailure
	}
	return string(data)
}
