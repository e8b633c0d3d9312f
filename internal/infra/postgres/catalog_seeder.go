package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"

	"voice-quiz-control/internal/domain"
)

type questionRow struct {
	bun.BaseModel `bun:"table:quiz_questions"`

	ID            string          `bun:"id,pk"`
	Position      int             `bun:"position,notnull"`
	Question      string          `bun:"question,notnull"`
	Options       json.RawMessage `bun:"options,type:jsonb,notnull"`
	CorrectAnswer string          `bun:"correct_answer,notnull"`
}

// SeedCatalog replaces the stored catalog with questions, keeping their order.
// Options are stored as an array of {key, text} so jsonb key ordering cannot reshuffle them.
func SeedCatalog(ctx context.Context, db *bun.DB, questions []domain.QuizQuestion) error {
	if err := domain.ValidateCatalog(questions); err != nil {
		return err
	}

	rows := make([]questionRow, 0, len(questions))
	ids := make([]string, 0, len(questions))
	for i, q := range questions {
		options, err := json.Marshal([]domain.Option(q.Options))
		if err != nil {
			return fmt.Errorf("encode options of %q: %w", q.ID, err)
		}
		rows = append(rows, questionRow{
			ID:            q.ID,
			Position:      i,
			Question:      q.Question,
			Options:       options,
			CorrectAnswer: q.CorrectAnswer,
		})
		ids = append(ids, q.ID)
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*questionRow)(nil)).
			Where("id NOT IN (?)", bun.In(ids)).
			Exec(ctx); err != nil {
			return fmt.Errorf("prune catalog: %w", err)
		}
		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (id) DO UPDATE").
			Set("position = EXCLUDED.position").
			Set("question = EXCLUDED.question").
			Set("options = EXCLUDED.options").
			Set("correct_answer = EXCLUDED.correct_answer").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert catalog: %w", err)
		}
		return nil
	})
}
