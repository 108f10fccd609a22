package sqlxrepos

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/submission"
)

type (
	lessonCompletionRow struct {
		UserID      string    `db:"user_id"`
		LessonID    string    `db:"lesson_id"`
		Completed   bool      `db:"completed"`
		CompletedAt null.Time `db:"completed_at"`
	}

	enrollmentRow struct {
		UserID          string    `db:"user_id"`
		CourseID        string    `db:"course_id"`
		ProgressPercent int       `db:"progress_percent"`
		CompletedAt     null.Time `db:"completed_at"`
	}

	attemptRow struct {
		ID                 string    `db:"id"`
		UserID             string    `db:"user_id"`
		TestID             string    `db:"test_id"`
		Status             string    `db:"status"`
		Score              int       `db:"score"`
		TotalPoints        int       `db:"total_points"`
		BandScore          float64   `db:"band_score"`
		PendingSubmissions int       `db:"pending_submissions"`
		StartedAt          time.Time `db:"started_at"`
		CompletedAt        null.Time `db:"completed_at"`
	}

	criteriaCols struct {
		TaskAchievement   null.Float64 `db:"task_achievement_score"`
		CoherenceCohesion null.Float64 `db:"coherence_score"`
		LexicalResource   null.Float64 `db:"lexical_score"`
		GrammaticalRange  null.Float64 `db:"grammar_score"`
		Fluency           null.Float64 `db:"fluency_score"`
		Pronunciation     null.Float64 `db:"pronunciation_score"`
		OverallBandScore  null.Float64 `db:"overall_band_score"`
	}

	submissionRow struct {
		ID         string `db:"id"`
		UserID     string `db:"user_id"`
		AttemptID  string `db:"attempt_id"`
		QuestionID string `db:"question_id"`
		Skill      string `db:"skill"`
		RawContent string `db:"raw_content"`
		Status     string `db:"status"`
		criteriaCols
		Feedback  string    `db:"feedback"`
		GradedBy  string    `db:"graded_by"`
		GradedAt  null.Time `db:"graded_at"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	standaloneRow struct {
		ID         string `db:"id"`
		UserID     string `db:"user_id"`
		ExerciseID string `db:"exercise_id"`
		Skill      string `db:"skill"`
		Content    string `db:"content"`
		Status     string `db:"status"`
		criteriaCols
		Feedback  string    `db:"feedback"`
		GradedBy  string    `db:"graded_by"`
		GradedAt  null.Time `db:"graded_at"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

const (
	attemptCols    = "id, user_id, test_id, status, score, total_points, band_score, pending_submissions, started_at, completed_at"
	criteriaSelect = "task_achievement_score, coherence_score, lexical_score, grammar_score, fluency_score, pronunciation_score, overall_band_score"
	submissionCols = "id, user_id, attempt_id, question_id, skill, raw_content, status, " + criteriaSelect +
		", feedback, graded_by, graded_at, created_at, updated_at"
	standaloneCols = "id, user_id, exercise_id, skill, content, status, " + criteriaSelect +
		", feedback, graded_by, graded_at, created_at, updated_at"
)

// utc normalises times read back from drivers that attach a local zone.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r lessonCompletionRow) toLessonCompletion() progress.LessonCompletion {
	return progress.LessonCompletion{
		UserID:      r.UserID,
		LessonID:    r.LessonID,
		Completed:   r.Completed,
		CompletedAt: utc(r.CompletedAt.Ptr()),
	}
}

func (r enrollmentRow) toEnrollment() progress.CourseEnrollment {
	return progress.CourseEnrollment{
		UserID:          r.UserID,
		CourseID:        r.CourseID,
		ProgressPercent: r.ProgressPercent,
		CompletedAt:     utc(r.CompletedAt.Ptr()),
	}
}

func (r attemptRow) toAttempt() attempt.Attempt {
	return attempt.Attempt{
		ID:                 r.ID,
		UserID:             r.UserID,
		TestID:             r.TestID,
		Status:             attempt.Status(r.Status),
		Score:              r.Score,
		TotalPoints:        r.TotalPoints,
		BandScore:          r.BandScore,
		PendingSubmissions: r.PendingSubmissions,
		StartedAt:          r.StartedAt.UTC(),
		CompletedAt:        utc(r.CompletedAt.Ptr()),
	}
}

func newCriteriaCols(c submission.Criteria, overall *float64) criteriaCols {
	return criteriaCols{
		TaskAchievement:   null.Float64FromPtr(c.TaskAchievement),
		CoherenceCohesion: null.Float64FromPtr(c.CoherenceCohesion),
		LexicalResource:   null.Float64FromPtr(c.LexicalResource),
		GrammaticalRange:  null.Float64FromPtr(c.GrammaticalRange),
		Fluency:           null.Float64FromPtr(c.Fluency),
		Pronunciation:     null.Float64FromPtr(c.Pronunciation),
		OverallBandScore:  null.Float64FromPtr(overall),
	}
}

func (c criteriaCols) criteria() submission.Criteria {
	return submission.Criteria{
		TaskAchievement:   c.TaskAchievement.Ptr(),
		CoherenceCohesion: c.CoherenceCohesion.Ptr(),
		LexicalResource:   c.LexicalResource.Ptr(),
		GrammaticalRange:  c.GrammaticalRange.Ptr(),
		Fluency:           c.Fluency.Ptr(),
		Pronunciation:     c.Pronunciation.Ptr(),
	}
}

func newSubmissionRow(s submission.Submission) submissionRow {
	return submissionRow{
		ID:           s.ID,
		UserID:       s.UserID,
		AttemptID:    s.AttemptID,
		QuestionID:   s.QuestionID,
		Skill:        string(s.Skill),
		RawContent:   s.RawContent,
		Status:       string(s.Status),
		criteriaCols: newCriteriaCols(s.Criteria, s.OverallBandScore),
		Feedback:     s.Feedback,
		GradedBy:     s.GradedBy,
		GradedAt:     null.TimeFromPtr(s.GradedAt),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (r submissionRow) toSubmission() submission.Submission {
	return submission.Submission{
		ID:               r.ID,
		UserID:           r.UserID,
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		Skill:            submission.Skill(r.Skill),
		RawContent:       r.RawContent,
		Status:           submission.Status(r.Status),
		Criteria:         r.criteria(),
		OverallBandScore: r.OverallBandScore.Ptr(),
		Feedback:         r.Feedback,
		GradedBy:         r.GradedBy,
		GradedAt:         utc(r.GradedAt.Ptr()),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func newStandaloneRow(s submission.Standalone) standaloneRow {
	return standaloneRow{
		ID:           s.ID,
		UserID:       s.UserID,
		ExerciseID:   s.ExerciseID,
		Skill:        string(s.Skill),
		Content:      s.Content,
		Status:       string(s.Status),
		criteriaCols: newCriteriaCols(s.Criteria, s.OverallBandScore),
		Feedback:     s.Feedback,
		GradedBy:     s.GradedBy,
		GradedAt:     null.TimeFromPtr(s.GradedAt),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (r standaloneRow) toStandalone() submission.Standalone {
	return submission.Standalone{
		ID:               r.ID,
		UserID:           r.UserID,
		ExerciseID:       r.ExerciseID,
		Skill:            submission.Skill(r.Skill),
		Content:          r.Content,
		Status:           submission.Status(r.Status),
		Criteria:         r.criteria(),
		OverallBandScore: r.OverallBandScore.Ptr(),
		Feedback:         r.Feedback,
		GradedBy:         r.GradedBy,
		GradedAt:         utc(r.GradedAt.Ptr()),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}
