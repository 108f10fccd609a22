package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/submission"
)

type gradingRepository struct {
	db *sqlx.DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *sqlx.DB) grading.Repository {
	return &gradingRepository{db: db}
}

const gradeCols = `
	status = :status,
	task_achievement_score = :task_achievement_score,
	coherence_score = :coherence_score,
	lexical_score = :lexical_score,
	grammar_score = :grammar_score,
	fluency_score = :fluency_score,
	pronunciation_score = :pronunciation_score,
	overall_band_score = :overall_band_score,
	feedback = :feedback,
	graded_by = :graded_by,
	graded_at = :graded_at,
	updated_at = :updated_at`

func (repo *gradingRepository) GetSubmission(ctx context.Context, id string) (submission.Submission, error) {
	var row submissionRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind("SELECT "+submissionCols+" FROM submissions WHERE id = ?"), id)
	if isNoRows(err) {
		return submission.Submission{}, submission.ErrNotFound
	}
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "selecting submission")
	}
	return row.toSubmission(), nil
}

// gradeArgs binds gradeCols plus the id and the expected current status.
func gradeArgs(id, status string, c criteriaCols, feedback, gradedBy string, gradedAt null.Time, updatedAt time.Time, from submission.Status) map[string]interface{} {
	return map[string]interface{}{
		"id":                     id,
		"status":                 status,
		"task_achievement_score": c.TaskAchievement,
		"coherence_score":        c.CoherenceCohesion,
		"lexical_score":          c.LexicalResource,
		"grammar_score":          c.GrammaticalRange,
		"fluency_score":          c.Fluency,
		"pronunciation_score":    c.Pronunciation,
		"overall_band_score":     c.OverallBandScore,
		"feedback":               feedback,
		"graded_by":              gradedBy,
		"graded_at":              gradedAt,
		"updated_at":             updatedAt,
		"from_status":            string(from),
	}
}

func (repo *gradingRepository) namedUpdate(ctx context.Context, query string, arg map[string]interface{}) (bool, error) {
	res, err := repo.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (repo *gradingRepository) UpdateSubmission(ctx context.Context, s submission.Submission, from submission.Status) (bool, error) {
	row := newSubmissionRow(s)
	ok, err := repo.namedUpdate(ctx,
		"UPDATE submissions SET "+gradeCols+" WHERE id = :id AND status = :from_status",
		gradeArgs(row.ID, row.Status, row.criteriaCols, row.Feedback, row.GradedBy, row.GradedAt, row.UpdatedAt, from),
	)
	return ok, errors.Wrap(err, "updating submission")
}

func (repo *gradingRepository) ExerciseExists(ctx context.Context, exerciseID string) (bool, error) {
	var n int
	q := repo.db.Rebind("SELECT COUNT(*) FROM exercises WHERE id = ?")
	if err := repo.db.GetContext(ctx, &n, q, exerciseID); err != nil {
		return false, errors.Wrap(err, "checking exercise")
	}
	return n > 0, nil
}

func (repo *gradingRepository) InsertStandaloneIfAbsent(ctx context.Context, s submission.Standalone) (bool, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO standalone_submissions (`+standaloneCols+`)
		VALUES (:id, :user_id, :exercise_id, :skill, :content, :status,
			:task_achievement_score, :coherence_score, :lexical_score, :grammar_score, :fluency_score,
			:pronunciation_score, :overall_band_score, :feedback, :graded_by, :graded_at, :created_at, :updated_at)
		ON CONFLICT (user_id, exercise_id) DO NOTHING`,
		newStandaloneRow(s),
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "inserting practice submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "inserting practice submission")
	}
	return n > 0, nil
}

func (repo *gradingRepository) getStandalone(ctx context.Context, where string, args ...interface{}) (submission.Standalone, error) {
	var row standaloneRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind("SELECT "+standaloneCols+" FROM standalone_submissions WHERE "+where), args...)
	if isNoRows(err) {
		return submission.Standalone{}, submission.ErrStandaloneNotFound
	}
	if err != nil {
		return submission.Standalone{}, errors.Wrap(err, "selecting practice submission")
	}
	return row.toStandalone(), nil
}

func (repo *gradingRepository) GetStandalone(ctx context.Context, id string) (submission.Standalone, error) {
	return repo.getStandalone(ctx, "id = ?", id)
}

func (repo *gradingRepository) GetStandaloneByExercise(ctx context.Context, userID, exerciseID string) (submission.Standalone, error) {
	return repo.getStandalone(ctx, "user_id = ? AND exercise_id = ?", userID, exerciseID)
}

func (repo *gradingRepository) UpdateStandalone(ctx context.Context, s submission.Standalone, from submission.Status) (bool, error) {
	row := newStandaloneRow(s)
	ok, err := repo.namedUpdate(ctx,
		"UPDATE standalone_submissions SET "+gradeCols+" WHERE id = :id AND status = :from_status",
		gradeArgs(row.ID, row.Status, row.criteriaCols, row.Feedback, row.GradedBy, row.GradedAt, row.UpdatedAt, from),
	)
	return ok, errors.Wrap(err, "updating practice submission")
}
