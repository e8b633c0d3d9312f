package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"voice-quiz-control/internal/domain"
)

// CatalogLoader loads the ordered quiz catalog from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) ([]domain.QuizQuestion, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, question, options, correct_answer FROM quiz_questions ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var questions []domain.QuizQuestion
	for rows.Next() {
		var (
			q   domain.QuizQuestion
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Question, &raw, &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of %q: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrCatalogNotFound
	}
	return questions, nil
}
