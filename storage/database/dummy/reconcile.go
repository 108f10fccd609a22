package dummydb

import (
	"context"

	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/submission"
)

type reconcileRepository struct {
	db *DB
}

var _ reconcile.Repository = (*reconcileRepository)(nil) // interface compliance check

func NewReconcileRepository(db *DB) reconcile.Repository {
	return &reconcileRepository{db: db}
}

func (repo *reconcileRepository) ListDuplicateSubmissions(_ context.Context) ([]submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[reconcile.Key]int)
	for _, s := range repo.db.submissions {
		counts[reconcile.Key{UserID: s.UserID, AttemptID: s.AttemptID, QuestionID: s.QuestionID}]++
	}
	var dups []submission.Submission
	for _, s := range repo.db.submissions {
		if counts[reconcile.Key{UserID: s.UserID, AttemptID: s.AttemptID, QuestionID: s.QuestionID}] > 1 {
			dups = append(dups, s)
		}
	}
	return dups, nil
}

func (repo *reconcileRepository) DeleteSubmissions(_ context.Context, ids []string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var removed int
	for _, id := range ids {
		if _, ok := repo.db.submissions[id]; ok {
			delete(repo.db.submissions, id)
			removed++
		}
	}
	return removed, nil
}
