package domain

import "errors"

var (
	// ErrEmptyCatalog is returned when a quiz is loaded from a catalog without questions.
	ErrEmptyCatalog = errors.New("quiz catalog is empty")
	// ErrCatalogNotFound indicates the catalog could not be found in its backing store.
	ErrCatalogNotFound = errors.New("quiz catalog not found")
	// ErrInvalidQuestion is wrapped by catalog validation failures.
	ErrInvalidQuestion = errors.New("invalid quiz question")
	// ErrNoActiveQuestion is returned when an operation needs a current question and there is none.
	ErrNoActiveQuestion = errors.New("no active quiz question")
	// ErrAlreadyAnswered is returned when the current question already has a recorded answer.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrOptionNotOffered indicates the selected key is valid but the current question does not offer it.
	ErrOptionNotOffered = errors.New("option not offered by current question")
)
