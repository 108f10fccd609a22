package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/submission"
)

type reconcileRepository struct {
	db *sqlx.DB
}

var _ reconcile.Repository = (*reconcileRepository)(nil) // interface compliance check

func NewReconcileRepository(db *sqlx.DB) reconcile.Repository {
	return &reconcileRepository{db: db}
}

func (repo *reconcileRepository) ListDuplicateSubmissions(ctx context.Context) ([]submission.Submission, error) {
	var rows []submissionRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+submissionCols+` FROM submissions s
		WHERE EXISTS (
			SELECT 1 FROM submissions d
			WHERE d.user_id = s.user_id AND d.attempt_id = s.attempt_id
			AND d.question_id = s.question_id AND d.id <> s.id
		)
		ORDER BY user_id, attempt_id, question_id, created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "selecting duplicate submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubmission())
	}
	return subs, nil
}

func (repo *reconcileRepository) DeleteSubmissions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In("DELETE FROM submissions WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var removed int64
	err = withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		removed, err = exec(ctx, tx, tx.Rebind(q), args...)
		return errors.Wrap(err, "deleting submissions")
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}
