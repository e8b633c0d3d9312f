package memory

import "voice-quiz-control/internal/domain"

// DefaultCatalog is the built-in trivia set used when no catalog file or database is configured.
func DefaultCatalog() []domain.QuizQuestion {
	return []domain.QuizQuestion{
		{
			ID:            "1",
			Question:      "What is the capital of France?",
			Options:       abcd("London", "Berlin", "Paris", "Madrid"),
			CorrectAnswer: "C",
		},
		{
			ID:            "2",
			Question:      "Which planet is known as the Red Planet?",
			Options:       abcd("Venus", "Mars", "Jupiter", "Saturn"),
			CorrectAnswer: "B",
		},
		{
			ID:            "3",
			Question:      "What is the largest ocean on Earth?",
			Options:       abcd("Atlantic Ocean", "Indian Ocean", "Arctic Ocean", "Pacific Ocean"),
			CorrectAnswer: "D",
		},
		{
			ID:            "4",
			Question:      "Who painted the Mona Lisa?",
			Options:       abcd("Vincent van Gogh", "Pablo Picasso", "Leonardo da Vinci", "Michelangelo"),
			CorrectAnswer: "C",
		},
		{
			ID:            "5",
			Question:      "What is the smallest prime number?",
			Options:       abcd("0", "1", "2", "3"),
			CorrectAnswer: "C",
		},
		{
			ID:            "6",
			Question:      "In which year did World War II end?",
			Options:       abcd("1943", "1944", "1945", "1946"),
			CorrectAnswer: "C",
		},
		{
			ID:            "7",
			Question:      "What is the chemical symbol for gold?",
			Options:       abcd("Go", "Gd", "Au", "Ag"),
			CorrectAnswer: "C",
		},
		{
			ID:            "8",
			Question:      "Which programming language is known as the 'language of the web'?",
			Options:       abcd("Python", "Java", "JavaScript", "C++"),
			CorrectAnswer: "C",
		},
	}
}

func abcd(a, b, c, d string) domain.Options {
	return domain.Options{
		{Key: "A", Text: a},
		{Key: "B", Text: b},
		{Key: "C", Text: c},
		{Key: "D", Text: d},
	}
}
