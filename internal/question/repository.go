package question

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
)

// Repository is the postgres-backed bank. It loads the active question set
// and deals with the same category-cycling mix as StaticBank.
type Repository struct {
	db   *pgxpool.Pool
	seed func() int64
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db:   db,
		seed: func() int64 { return time.Now().UnixNano() },
	}
}

func (r *Repository) Deal(ctx context.Context, n int) ([]domain.Question, error) {
	qs, err := r.loadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("question: load bank: %w", err)
	}

	return NewStaticBank(qs, r.seed()).Deal(ctx, n)
}

func (r *Repository) loadAll(ctx context.Context) ([]domain.Question, error) {
	const qStmt = `
SELECT question_id, question_text, category, difficulty, COALESCE(explanation, '')
FROM questions
WHERE active
ORDER BY question_id;`

	rows, err := r.db.Query(ctx, qStmt)
	if err != nil {
		return nil, err
	}

	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := row.Scan(&q.QuestionID, &q.Text, &q.Category, &q.Difficulty, &q.Explanation)
		return q, err
	})
	if err != nil {
		return nil, err
	}

	const oStmt = `
SELECT question_id, option_text, is_correct
FROM question_options
ORDER BY question_id, option_index;`

	rows, err = r.db.Query(ctx, oStmt)
	if err != nil {
		return nil, err
	}

	type optRow struct {
		questionID string
		opt        domain.Option
	}
	opts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (optRow, error) {
		var o optRow
		err := row.Scan(&o.questionID, &o.opt.Text, &o.opt.IsCorrect)
		return o, err
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Question, len(qs))
	for i := range qs {
		byID[qs[i].QuestionID] = &qs[i]
	}
	for _, o := range opts {
		if q, ok := byID[o.questionID]; ok {
			q.Options = append(q.Options, o.opt)
		}
	}

	return qs, nil
}
