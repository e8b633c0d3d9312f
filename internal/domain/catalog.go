package domain

import "fmt"

// ValidateCatalog checks that the catalog can back a quiz session.
func ValidateCatalog(questions []QuizQuestion) error {
	if len(questions) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuestion, i+1)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.Question == "" {
			return fmt.Errorf("%w: %q has no question text", ErrInvalidQuestion, q.ID)
		}
		if n := len(q.Options); n < 2 || n > len(OptionKeys) {
			return fmt.Errorf("%w: %q has %d options, want 2-%d", ErrInvalidQuestion, q.ID, n, len(OptionKeys))
		}
		keys := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if !ValidOptionKey(opt.Key) {
				return fmt.Errorf("%w: %q has option key %q", ErrInvalidQuestion, q.ID, opt.Key)
			}
			if _, dup := keys[opt.Key]; dup {
				return fmt.Errorf("%w: %q repeats option key %q", ErrInvalidQuestion, q.ID, opt.Key)
			}
			keys[opt.Key] = struct{}{}
		}
		if _, ok := keys[q.CorrectAnswer]; !ok {
			return fmt.Errorf("%w: %q correct answer %q is not an option", ErrInvalidQuestion, q.ID, q.CorrectAnswer)
		}
	}
	return nil
}

// CloneQuestions deep-copies a question list so sessions never share option slices with the catalog.
func CloneQuestions(questions []QuizQuestion) []QuizQuestion {
	out := make([]QuizQuestion, len(questions))
	for i, q := range questions {
		q.Options = q.Options.Clone()
		out[i] = q
	}
	return out
}
