package dummydb

import (
	"context"

	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/submission"
)

type gradingRepository struct {
	db *DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db}
}

func (repo *gradingRepository) GetSubmission(_ context.Context, id string) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return s, nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *gradingRepository) UpdateSubmission(_ context.Context, s submission.Submission, from submission.Status) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.submissions[s.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	repo.db.submissions[s.ID] = s
	return true, nil
}

func (repo *gradingRepository) ExerciseExists(_ context.Context, exerciseID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.exercises[exerciseID]
	return ok, nil
}

func (repo *gradingRepository) InsertStandaloneIfAbsent(_ context.Context, s submission.Standalone) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.standalones {
		if existing.UserID == s.UserID && existing.ExerciseID == s.ExerciseID {
			return false, nil
		}
	}
	repo.db.standalones[s.ID] = s
	return true, nil
}

func (repo *gradingRepository) GetStandalone(_ context.Context, id string) (submission.Standalone, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.standalones[id]; ok {
		return s, nil
	}
	return submission.Standalone{}, submission.ErrStandaloneNotFound
}

func (repo *gradingRepository) GetStandaloneByExercise(_ context.Context, userID, exerciseID string) (submission.Standalone, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.standalones {
		if s.UserID == userID && s.ExerciseID == exerciseID {
			return s, nil
		}
	}
	return submission.Standalone{}, submission.ErrStandaloneNotFound
}

func (repo *gradingRepository) UpdateStandalone(_ context.Context, s submission.Standalone, from submission.Status) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.standalones[s.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	repo.db.standalones[s.ID] = s
	return true, nil
}
