package progress

import (
	"math"
	"time"
)

// PointsPerLevel is the number of points a user needs to gain a level.
const PointsPerLevel = 100

// Catalog records, authored elsewhere.
type (
	Exercise struct {
		ID       string `json:"id" db:"id"`
		LessonID string `json:"lesson_id" db:"lesson_id"`
	}

	Lesson struct {
		ID       string `json:"id" db:"id"`
		CourseID string `json:"course_id" db:"course_id"`
	}
)

// ExerciseCompletion is the user's latest response to an exercise.
// Completed tracks "submitted", not "passed".
type ExerciseCompletion struct {
	UserID      string    `json:"user_id"`
	ExerciseID  string    `json:"exercise_id"`
	Completed   bool      `json:"completed"`
	RawAnswer   string    `json:"raw_answer"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"` // UTC; first completion
}

type LessonCompletion struct {
	UserID      string     `json:"user_id"`
	LessonID    string     `json:"lesson_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"` // UTC
}

type CourseEnrollment struct {
	UserID          string     `json:"user_id"`
	CourseID        string     `json:"course_id"`
	ProgressPercent int        `json:"progress_percent"`
	CompletedAt     *time.Time `json:"completed_at"` // UTC; set iff ProgressPercent == 100
}

// PointAward is one entry of the point ledger. Source is unique per user.
type PointAward struct {
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Points    int       `json:"points"`
	AwardedAt time.Time `json:"awarded_at"`
}

type UserPoints struct {
	UserID      string `json:"user_id"`
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
}

// ExerciseCompletionInput contains information needed to record an exercise response.
type ExerciseCompletionInput struct {
	UserID     string `json:"user_id" validate:"required,notblank"`
	ExerciseID string `json:"exercise_id" validate:"required,notblank"`
	Answer     string `json:"answer"`
	Score      int    `json:"score" validate:"min=0"`
}

// CascadeResult is the aggregate state derived from one exercise completion.
type CascadeResult struct {
	LessonID              string `json:"lesson_id"`
	CourseID              string `json:"course_id"`
	LessonCompleted       bool   `json:"lesson_completed"`
	LessonCompletedNow    bool   `json:"lesson_completed_now"`
	CourseProgressPercent int    `json:"course_progress_percent"`
	CourseCompleted       bool   `json:"course_completed"`
	PointsAwarded         int    `json:"points_awarded"`
	TotalPoints           int    `json:"total_points"`
	Level                 int    `json:"level"`
}

func ExerciseSource(exerciseID string) string { return "exercise:" + exerciseID }
func LessonSource(lessonID string) string     { return "lesson:" + lessonID }

func LevelFor(totalPoints int) int {
	return totalPoints/PointsPerLevel + 1
}

// ProgressPercent returns round(100 * completed / total); a course without lessons is at 0%.
func ProgressPercent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// lessonComplete reports whether every exercise of the lesson has a completed ExerciseCompletion.
// A lesson without exercises never completes.
func lessonComplete(exerciseIDs []string, completions []ExerciseCompletion) bool {
	if len(exerciseIDs) == 0 || len(completions) != len(exerciseIDs) {
		return false
	}
	done := make(map[string]bool, len(completions))
	for _, c := range completions {
		if !c.Completed {
			return false
		}
		done[c.ExerciseID] = true
	}
	for _, id := range exerciseIDs {
		if !done[id] {
			return false
		}
	}
	return true
}
