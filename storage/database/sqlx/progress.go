package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/progress"
)

type progressRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *sqlx.DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetExercise(ctx context.Context, id string) (progress.Exercise, error) {
	var e progress.Exercise
	err := repo.db.GetContext(ctx, &e, repo.db.Rebind("SELECT id, lesson_id FROM exercises WHERE id = ?"), id)
	if isNoRows(err) {
		return progress.Exercise{}, progress.ErrExerciseNotFound
	}
	return e, errors.Wrap(err, "selecting exercise")
}

func (repo *progressRepository) GetLesson(ctx context.Context, id string) (progress.Lesson, error) {
	var l progress.Lesson
	err := repo.db.GetContext(ctx, &l, repo.db.Rebind("SELECT id, course_id FROM lessons WHERE id = ?"), id)
	if isNoRows(err) {
		return progress.Lesson{}, progress.ErrLessonNotFound
	}
	return l, errors.Wrap(err, "selecting lesson")
}

func (repo *progressRepository) ListLessonExerciseIDs(ctx context.Context, lessonID string) ([]string, error) {
	var ids []string
	q := repo.db.Rebind("SELECT id FROM exercises WHERE lesson_id = ? ORDER BY id")
	if err := repo.db.SelectContext(ctx, &ids, q, lessonID); err != nil {
		return nil, errors.Wrap(err, "selecting exercise ids")
	}
	return ids, nil
}

func (repo *progressRepository) UpsertExerciseCompletion(ctx context.Context, c progress.ExerciseCompletion) (bool, error) {
	inserted, err := exec(ctx, repo.db, repo.db.Rebind(`
		INSERT INTO exercise_completions (user_id, exercise_id, completed, raw_answer, score, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, exercise_id) DO NOTHING`),
		c.UserID, c.ExerciseID, c.Completed, c.RawAnswer, c.Score, c.CompletedAt,
	)
	if err != nil {
		return false, errors.Wrap(err, "inserting exercise completion")
	}
	if inserted > 0 {
		return true, nil
	}

	_, err = exec(ctx, repo.db, repo.db.Rebind(`
		UPDATE exercise_completions SET completed = ?, raw_answer = ?, score = ?
		WHERE user_id = ? AND exercise_id = ?`),
		c.Completed, c.RawAnswer, c.Score, c.UserID, c.ExerciseID,
	)
	return false, errors.Wrap(err, "updating exercise completion")
}

func (repo *progressRepository) ListExerciseCompletions(ctx context.Context, userID string, exerciseIDs []string) ([]progress.ExerciseCompletion, error) {
	if len(exerciseIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`
		SELECT user_id, exercise_id, completed, raw_answer, score, completed_at
		FROM exercise_completions WHERE user_id = ? AND exercise_id IN (?)
		ORDER BY exercise_id`, userID, exerciseIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	rows, err := repo.db.QueryxContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "selecting exercise completions")
	}
	defer func() { _ = rows.Close() }()

	var comps []progress.ExerciseCompletion
	for rows.Next() {
		var c progress.ExerciseCompletion
		if err = rows.Scan(&c.UserID, &c.ExerciseID, &c.Completed, &c.RawAnswer, &c.Score, &c.CompletedAt); err != nil {
			return nil, errors.Wrap(err, "scanning exercise completion")
		}
		c.CompletedAt = c.CompletedAt.UTC()
		comps = append(comps, c)
	}
	return comps, errors.Wrap(rows.Err(), "iterating exercise completions")
}

func (repo *progressRepository) getLessonCompletion(ctx context.Context, userID, lessonID string) (progress.LessonCompletion, error) {
	var row lessonCompletionRow
	q := repo.db.Rebind("SELECT user_id, lesson_id, completed, completed_at FROM lesson_completions WHERE user_id = ? AND lesson_id = ?")
	if err := repo.db.GetContext(ctx, &row, q, userID, lessonID); err != nil {
		return progress.LessonCompletion{}, errors.Wrap(err, "selecting lesson completion")
	}
	return row.toLessonCompletion(), nil
}

func (repo *progressRepository) MarkLessonCompleted(ctx context.Context, c progress.LessonCompletion) (progress.LessonCompletion, bool, error) {
	n, err := exec(ctx, repo.db, repo.db.Rebind(`
		INSERT INTO lesson_completions (user_id, lesson_id, completed, completed_at)
		VALUES (?, ?, true, ?)
		ON CONFLICT (user_id, lesson_id) DO NOTHING`),
		c.UserID, c.LessonID, c.CompletedAt,
	)
	if err != nil {
		return progress.LessonCompletion{}, false, errors.Wrap(err, "inserting lesson completion")
	}
	if n == 0 {
		n, err = exec(ctx, repo.db, repo.db.Rebind(`
			UPDATE lesson_completions SET completed = true, completed_at = ?
			WHERE user_id = ? AND lesson_id = ? AND completed = false`),
			c.CompletedAt, c.UserID, c.LessonID,
		)
		if err != nil {
			return progress.LessonCompletion{}, false, errors.Wrap(err, "updating lesson completion")
		}
	}

	lc, err := repo.getLessonCompletion(ctx, c.UserID, c.LessonID)
	if err != nil {
		return progress.LessonCompletion{}, false, err
	}
	return lc, n > 0, nil
}

func (repo *progressRepository) ResetLessonCompletion(ctx context.Context, userID, lessonID string) (bool, error) {
	n, err := exec(ctx, repo.db, repo.db.Rebind(`
		UPDATE lesson_completions SET completed = false, completed_at = NULL
		WHERE user_id = ? AND lesson_id = ? AND completed = true
		AND EXISTS (
			SELECT 1 FROM exercises e WHERE e.lesson_id = ? AND NOT EXISTS (
				SELECT 1 FROM exercise_completions c
				WHERE c.user_id = ? AND c.exercise_id = e.id AND c.completed = true
			)
		)`),
		userID, lessonID, lessonID, userID,
	)
	if err != nil {
		return false, errors.Wrap(err, "resetting lesson completion")
	}
	return n > 0, nil
}

func (repo *progressRepository) UpdateEnrollment(ctx context.Context, userID, courseID string, merge progress.EnrollmentMerge) (progress.CourseEnrollment, error) {
	var enr progress.CourseEnrollment
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO course_enrollments (user_id, course_id, progress_percent) VALUES (?, ?, 0)
			ON CONFLICT (user_id, course_id) DO NOTHING`),
			userID, courseID,
		)
		if err != nil {
			return errors.Wrap(err, "inserting enrollment")
		}

		var row enrollmentRow
		q := tx.Rebind(`
			SELECT user_id, course_id, progress_percent, completed_at
			FROM course_enrollments WHERE user_id = ? AND course_id = ?` + forUpdate(repo.db))
		if err = tx.GetContext(ctx, &row, q, userID, courseID); err != nil {
			return errors.Wrap(err, "selecting enrollment")
		}

		var total, completed int
		if err = tx.GetContext(ctx, &total, tx.Rebind("SELECT COUNT(*) FROM lessons WHERE course_id = ?"), courseID); err != nil {
			return errors.Wrap(err, "counting lessons")
		}
		err = tx.GetContext(ctx, &completed, tx.Rebind(`
			SELECT COUNT(*) FROM lesson_completions lc JOIN lessons l ON l.id = lc.lesson_id
			WHERE l.course_id = ? AND lc.user_id = ? AND lc.completed = true`),
			courseID, userID,
		)
		if err != nil {
			return errors.Wrap(err, "counting completed lessons")
		}

		enr = merge(row.toEnrollment(), completed, total)
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE course_enrollments SET progress_percent = ?, completed_at = ?
			WHERE user_id = ? AND course_id = ?`),
			enr.ProgressPercent, enr.CompletedAt, userID, courseID,
		)
		return errors.Wrap(err, "updating enrollment")
	})
	if err != nil {
		return progress.CourseEnrollment{}, err
	}
	return enr, nil
}

func (repo *progressRepository) GetEnrollment(ctx context.Context, userID, courseID string) (progress.CourseEnrollment, error) {
	var row enrollmentRow
	q := repo.db.Rebind(`
		SELECT user_id, course_id, progress_percent, completed_at
		FROM course_enrollments WHERE user_id = ? AND course_id = ?`)
	err := repo.db.GetContext(ctx, &row, q, userID, courseID)
	if isNoRows(err) {
		return progress.CourseEnrollment{}, progress.ErrEnrollmentNotFound
	}
	if err != nil {
		return progress.CourseEnrollment{}, errors.Wrap(err, "selecting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *progressRepository) AwardPoints(ctx context.Context, award progress.PointAward) (bool, error) {
	n, err := exec(ctx, repo.db, repo.db.Rebind(`
		INSERT INTO point_awards (user_id, source, points, awarded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, source) DO NOTHING`),
		award.UserID, award.Source, award.Points, award.AwardedAt,
	)
	if err != nil {
		return false, errors.Wrap(err, "inserting point award")
	}
	return n > 0, nil
}

func (repo *progressRepository) GetUserPoints(ctx context.Context, userID string) (progress.UserPoints, error) {
	pts := progress.UserPoints{UserID: userID}
	q := repo.db.Rebind("SELECT COALESCE(SUM(points), 0) FROM point_awards WHERE user_id = ?")
	if err := repo.db.GetContext(ctx, &pts.TotalPoints, q, userID); err != nil {
		return progress.UserPoints{}, errors.Wrap(err, "summing points")
	}
	pts.Level = progress.LevelFor(pts.TotalPoints)
	return pts, nil
}
