package attempt

import (
	"time"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/submission"
)

// Status of a test attempt. COMPLETED is terminal.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

var transitions = map[Status][]Status{
	StatusInProgress: {StatusCompleted},
}

// Transition returns an *core.InvalidStateError unless from -> to is allowed.
func Transition(from, to Status) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return core.NewInvalidStateError("cannot move attempt from " + string(from) + " to " + string(to))
}

// Catalog records, authored elsewhere.
type (
	Test struct {
		ID string `json:"id"`
	}

	Question struct {
		ID            string           `json:"id"`
		TestID        string           `json:"test_id"`
		Skill         submission.Skill `json:"skill"`
		CorrectOption string           `json:"-"`
		Points        int              `json:"points"`
	}
)

type (
	Attempt struct {
		ID                 string     `json:"id"`
		UserID             string     `json:"user_id"`
		TestID             string     `json:"test_id"`
		Status             Status     `json:"status"`
		Score              int        `json:"score"`
		TotalPoints        int        `json:"total_points"`
		BandScore          float64    `json:"band_score"`
		PendingSubmissions int        `json:"pending_submissions"`
		StartedAt          time.Time  `json:"started_at"`
		CompletedAt        *time.Time `json:"completed_at"`
	}

	// Answer is unique per (AttemptID, QuestionID) and frozen once the attempt completes.
	Answer struct {
		AttemptID    string    `json:"attempt_id"`
		QuestionID   string    `json:"question_id"`
		Selection    string    `json:"selection"`
		Text         string    `json:"text"`
		IsCorrect    bool      `json:"is_correct"`
		PointsEarned int       `json:"points_earned"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	// SubmitAnswerInput contains information needed to answer a question of an attempt.
	SubmitAnswerInput struct {
		AttemptID  string `json:"-" validate:"required,notblank"`
		QuestionID string `json:"question_id" validate:"required,notblank"`
		UserID     string `json:"-" validate:"required,notblank"`
		Selection  string `json:"selection"`
		Text       string `json:"text"`
	}

	AnswerResult struct {
		Answer     Answer                 `json:"answer"`
		Submission *submission.Submission `json:"submission,omitempty"`
	}

	Summary struct {
		AttemptID               string     `json:"attempt_id"`
		Score                   int        `json:"score"`
		TotalPoints             int        `json:"total_points"`
		Percentage              float64    `json:"percentage"`
		BandScore               float64    `json:"band_score"`
		PendingSubmissionsCount int        `json:"pending_submissions_count"`
		CompletedAt             *time.Time `json:"completed_at"`
	}
)

// Summary returns the completion result stored on the attempt.
func (a Attempt) Summary() Summary {
	return Summary{
		AttemptID:               a.ID,
		Score:                   a.Score,
		TotalPoints:             a.TotalPoints,
		Percentage:              Percentage(a.Score, a.TotalPoints),
		BandScore:               a.BandScore,
		PendingSubmissionsCount: a.PendingSubmissions,
		CompletedAt:             a.CompletedAt,
	}
}

func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}

var bandThresholds = []struct {
	min  int // percent
	band float64
}{
	{90, 9.0},
	{80, 8.0},
	{70, 7.0},
	{60, 6.5},
	{50, 6.0},
	{40, 5.5},
	{30, 5.0},
	{20, 4.5},
}

// BandScore maps an objective score onto the 0-9 band scale.
// Tests with no objective points score 0 until graded by hand.
func BandScore(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	for _, t := range bandThresholds {
		if score*100 >= t.min*total {
			return t.band
		}
	}
	return 4.0
}
