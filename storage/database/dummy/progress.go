package dummydb

import (
	"context"

	"github.com/trezcool/tathmini/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetExercise(_ context.Context, id string) (progress.Exercise, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.exercises[id]; ok {
		return e, nil
	}
	return progress.Exercise{}, progress.ErrExerciseNotFound
}

func (repo *progressRepository) GetLesson(_ context.Context, id string) (progress.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return l, nil
	}
	return progress.Lesson{}, progress.ErrLessonNotFound
}

func (repo *progressRepository) ListLessonExerciseIDs(_ context.Context, lessonID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make(map[string]bool)
	for _, e := range repo.db.exercises {
		if e.LessonID == lessonID {
			ids[e.ID] = true
		}
	}
	return sortedKeys(ids), nil
}

func (repo *progressRepository) UpsertExerciseCompletion(_ context.Context, c progress.ExerciseCompletion) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	k := pair{c.UserID, c.ExerciseID}
	existing, ok := repo.db.exerciseCompletions[k]
	if ok {
		c.CompletedAt = existing.CompletedAt
	}
	repo.db.exerciseCompletions[k] = c
	return !ok, nil
}

func (repo *progressRepository) ListExerciseCompletions(_ context.Context, userID string, exerciseIDs []string) ([]progress.ExerciseCompletion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var comps []progress.ExerciseCompletion
	for _, id := range exerciseIDs {
		if c, ok := repo.db.exerciseCompletions[pair{userID, id}]; ok {
			comps = append(comps, c)
		}
	}
	return comps, nil
}

func (repo *progressRepository) MarkLessonCompleted(_ context.Context, c progress.LessonCompletion) (progress.LessonCompletion, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	k := pair{c.UserID, c.LessonID}
	if existing, ok := repo.db.lessonCompletions[k]; ok && existing.Completed {
		return existing, false, nil
	}
	c.Completed = true
	repo.db.lessonCompletions[k] = c
	return c, true, nil
}

func (repo *progressRepository) ResetLessonCompletion(_ context.Context, userID, lessonID string) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	k := pair{userID, lessonID}
	existing, ok := repo.db.lessonCompletions[k]
	if !ok || !existing.Completed {
		return false, nil
	}

	var missing bool
	for _, e := range repo.db.exercises {
		if e.LessonID != lessonID {
			continue
		}
		if c, ok := repo.db.exerciseCompletions[pair{userID, e.ID}]; !ok || !c.Completed {
			missing = true
			break
		}
	}
	if !missing {
		return false, nil
	}
	existing.Completed = false
	existing.CompletedAt = nil
	repo.db.lessonCompletions[k] = existing
	return true, nil
}

func (repo *progressRepository) UpdateEnrollment(_ context.Context, userID, courseID string, merge progress.EnrollmentMerge) (progress.CourseEnrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var total, completed int
	for _, l := range repo.db.lessons {
		if l.CourseID != courseID {
			continue
		}
		total++
		if lc, ok := repo.db.lessonCompletions[pair{userID, l.ID}]; ok && lc.Completed {
			completed++
		}
	}

	k := pair{userID, courseID}
	cur, ok := repo.db.enrollments[k]
	if !ok {
		cur = progress.CourseEnrollment{UserID: userID, CourseID: courseID}
	}
	enr := merge(cur, completed, total)
	repo.db.enrollments[k] = enr
	return enr, nil
}

func (repo *progressRepository) GetEnrollment(_ context.Context, userID, courseID string) (progress.CourseEnrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.enrollments[pair{userID, courseID}]; ok {
		return enr, nil
	}
	return progress.CourseEnrollment{}, progress.ErrEnrollmentNotFound
}

func (repo *progressRepository) AwardPoints(_ context.Context, award progress.PointAward) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	k := pair{award.UserID, award.Source}
	if _, ok := repo.db.pointAwards[k]; ok {
		return false, nil
	}
	repo.db.pointAwards[k] = award
	return true, nil
}

func (repo *progressRepository) GetUserPoints(_ context.Context, userID string) (progress.UserPoints, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	pts := progress.UserPoints{UserID: userID}
	for k, award := range repo.db.pointAwards {
		if k.a == userID {
			pts.TotalPoints += award.Points
		}
	}
	pts.Level = progress.LevelFor(pts.TotalPoints)
	return pts, nil
}
