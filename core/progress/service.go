package progress

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

var (
	// errors
	ErrExerciseNotFound   = core.NewNotFoundError("exercise")
	ErrLessonNotFound     = core.NewNotFoundError("lesson")
	ErrEnrollmentNotFound = core.NewNotFoundError("enrollment")
)

type (
	// EnrollmentMerge derives the new enrollment state from the stored one
	// and the user's current lesson counts for the course.
	EnrollmentMerge func(current CourseEnrollment, completedLessons, totalLessons int) CourseEnrollment

	Repository interface {
		GetExercise(ctx context.Context, id string) (Exercise, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		ListLessonExerciseIDs(ctx context.Context, lessonID string) ([]string, error)

		// UpsertExerciseCompletion creates or overwrites the (user, exercise) row. The first CompletedAt is kept.
		UpsertExerciseCompletion(ctx context.Context, c ExerciseCompletion) (created bool, err error)
		ListExerciseCompletions(ctx context.Context, userID string, exerciseIDs []string) ([]ExerciseCompletion, error)

		// MarkLessonCompleted flips the (user, lesson) row to completed.
		// transitioned is true only for the call that performed the flip.
		MarkLessonCompleted(ctx context.Context, c LessonCompletion) (lc LessonCompletion, transitioned bool, err error)
		// ResetLessonCompletion clears a completed row if, at the time of the write,
		// some exercise of the lesson has no completed ExerciseCompletion for the user.
		ResetLessonCompletion(ctx context.Context, userID, lessonID string) (reset bool, err error)

		// UpdateEnrollment atomically reads, merges and stores the (user, course) enrollment,
		// creating it when absent.
		UpdateEnrollment(ctx context.Context, userID, courseID string, merge EnrollmentMerge) (CourseEnrollment, error)
		GetEnrollment(ctx context.Context, userID, courseID string) (CourseEnrollment, error)

		// AwardPoints inserts the award unless (UserID, Source) is already in the ledger.
		AwardPoints(ctx context.Context, award PointAward) (awarded bool, err error)
		GetUserPoints(ctx context.Context, userID string) (UserPoints, error)
	}

	Options struct {
		LessonBonus int
		// Monotonic stops course progress from decreasing when lessons are added.
		Monotonic bool
	}

	Service struct {
		repo      Repository
		validator *core.Validator
		logger    core.Logger
		opts      Options
	}
)

func NewService(repo Repository, validator *core.Validator, logger core.Logger, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validator, "validator"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:      repo,
		validator: validator,
		logger:    logger,
		opts: Options{
			LessonBonus: conf.Progress.LessonBonus,
			Monotonic:   conf.Progress.Monotonic,
		},
	}
}

// RecordExerciseCompletion stores the user's response to an exercise then rolls completion
// up to the lesson and course, awarding points at most once per source.
// It is safe to retry after a partial failure: every step converges to the same state.
func (svc *Service) RecordExerciseCompletion(ctx context.Context, in ExerciseCompletionInput) (CascadeResult, error) {
	in.UserID = core.CleanString(in.UserID)
	in.ExerciseID = core.CleanString(in.ExerciseID)
	if err := svc.validator.Struct(in); err != nil {
		return CascadeResult{}, err
	}

	ex, err := svc.repo.GetExercise(ctx, in.ExerciseID)
	if err != nil {
		return CascadeResult{}, errors.Wrap(err, "getting exercise")
	}
	lesson, err := svc.repo.GetLesson(ctx, ex.LessonID)
	if err != nil {
		return CascadeResult{}, errors.Wrap(err, "getting lesson")
	}

	now := core.NowFunc()
	res := CascadeResult{LessonID: lesson.ID, CourseID: lesson.CourseID}

	created, err := svc.repo.UpsertExerciseCompletion(ctx, ExerciseCompletion{
		UserID:      in.UserID,
		ExerciseID:  ex.ID,
		Completed:   true,
		RawAnswer:   in.Answer,
		Score:       in.Score,
		CompletedAt: now,
	})
	if err != nil {
		return CascadeResult{}, errors.Wrap(err, "saving exercise completion")
	}
	if created {
		svc.logger.Debug("exercise completed", map[string]interface{}{"user_id": in.UserID, "exercise_id": ex.ID})
	}

	if in.Score > 0 {
		pts, err := svc.award(ctx, in.UserID, ExerciseSource(ex.ID), in.Score)
		if err != nil {
			return CascadeResult{}, err
		}
		res.PointsAwarded += pts
	}

	if res.LessonCompleted, res.LessonCompletedNow, err = svc.cascadeLesson(ctx, in.UserID, lesson.ID); err != nil {
		return CascadeResult{}, err
	}
	if res.LessonCompleted && svc.opts.LessonBonus > 0 {
		pts, err := svc.award(ctx, in.UserID, LessonSource(lesson.ID), svc.opts.LessonBonus)
		if err != nil {
			return CascadeResult{}, err
		}
		res.PointsAwarded += pts
	}

	enr, err := svc.repo.UpdateEnrollment(ctx, in.UserID, lesson.CourseID, svc.mergeEnrollment)
	if err != nil {
		return CascadeResult{}, errors.Wrap(err, "updating enrollment")
	}
	res.CourseProgressPercent = enr.ProgressPercent
	res.CourseCompleted = enr.CompletedAt != nil

	pts, err := svc.repo.GetUserPoints(ctx, in.UserID)
	if err != nil {
		return CascadeResult{}, errors.Wrap(err, "getting user points")
	}
	res.TotalPoints = pts.TotalPoints
	res.Level = pts.Level
	return res, nil
}

// cascadeLesson derives the lesson state from the stored exercise completions.
func (svc *Service) cascadeLesson(ctx context.Context, userID, lessonID string) (completed, now bool, err error) {
	exerciseIDs, err := svc.repo.ListLessonExerciseIDs(ctx, lessonID)
	if err != nil {
		return false, false, errors.Wrap(err, "listing lesson exercises")
	}
	completions, err := svc.repo.ListExerciseCompletions(ctx, userID, exerciseIDs)
	if err != nil {
		return false, false, errors.Wrap(err, "listing exercise completions")
	}

	if !lessonComplete(exerciseIDs, completions) {
		reset, err := svc.repo.ResetLessonCompletion(ctx, userID, lessonID)
		if err != nil {
			return false, false, errors.Wrap(err, "resetting lesson completion")
		}
		if reset {
			svc.logger.Warn("lesson completion reset", map[string]interface{}{"user_id": userID, "lesson_id": lessonID})
		}
		return false, false, nil
	}

	at := core.NowFunc()
	lc, transitioned, err := svc.repo.MarkLessonCompleted(ctx, LessonCompletion{
		UserID:      userID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: &at,
	})
	if err != nil {
		return false, false, errors.Wrap(err, "marking lesson completed")
	}
	if transitioned {
		svc.logger.Info("lesson completed", map[string]interface{}{"user_id": userID, "lesson_id": lessonID})
	}
	return lc.Completed, transitioned, nil
}

func (svc *Service) mergeEnrollment(cur CourseEnrollment, completedLessons, totalLessons int) CourseEnrollment {
	percent := ProgressPercent(completedLessons, totalLessons)
	if svc.opts.Monotonic && percent < cur.ProgressPercent {
		percent = cur.ProgressPercent
	}
	cur.ProgressPercent = percent
	switch {
	case percent < 100:
		cur.CompletedAt = nil
	case cur.CompletedAt == nil:
		now := core.NowFunc()
		cur.CompletedAt = &now
	}
	return cur
}

func (svc *Service) award(ctx context.Context, userID, source string, points int) (int, error) {
	awarded, err := svc.repo.AwardPoints(ctx, PointAward{
		UserID:    userID,
		Source:    source,
		Points:    points,
		AwardedAt: core.NowFunc(),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "awarding points for %s", source)
	}
	if !awarded {
		return 0, nil
	}
	return points, nil
}

func (svc *Service) GetCourseProgress(ctx context.Context, userID, courseID string) (CourseEnrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return CourseEnrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return enr, nil
}

// GetUserPoints returns the user's ledger total. Users without awards are at level 1.
func (svc *Service) GetUserPoints(ctx context.Context, userID string) (UserPoints, error) {
	pts, err := svc.repo.GetUserPoints(ctx, userID)
	if err != nil {
		return UserPoints{}, errors.Wrap(err, "getting user points")
	}
	return pts, nil
}
