package submission

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

// Skill is the ability assessed by a question or an exercise.
type Skill string

const (
	SkillListening      Skill = "LISTENING"
	SkillReading        Skill = "READING"
	SkillMultipleChoice Skill = "MULTIPLE_CHOICE"
	SkillWriting        Skill = "WRITING"
	SkillSpeaking       Skill = "SPEAKING"
)

func (s Skill) Valid() bool {
	switch s {
	case SkillListening, SkillReading, SkillMultipleChoice, SkillWriting, SkillSpeaking:
		return true
	}
	return false
}

// Subjective reports whether answers need human grading.
func (s Skill) Subjective() bool {
	return s == SkillWriting || s == SkillSpeaking
}

// Status of a submission awaiting or past human grading.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusGrading  Status = "GRADING"
	StatusGraded   Status = "GRADED"
	StatusReturned Status = "RETURNED"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusGrading, StatusGraded},
	StatusGrading:  {StatusPending, StatusGraded},
	StatusGraded:   {StatusGraded, StatusReturned},
	StatusReturned: {StatusGraded},
}

// Transition returns an *core.InvalidStateError unless from -> to is allowed.
func Transition(from, to Status) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return core.NewInvalidStateError("cannot move submission from " + string(from) + " to " + string(to))
}

// Priority ranks statuses when choosing which duplicate to keep; higher wins.
func (s Status) Priority() int {
	switch s {
	case StatusGraded:
		return 4
	case StatusReturned:
		return 3
	case StatusGrading:
		return 2
	case StatusPending:
		return 1
	}
	return 0
}

// AwaitingGrade reports whether a grader still has to act on the submission.
func (s Status) AwaitingGrade() bool {
	return s == StatusPending || s == StatusGrading
}

// Criteria holds the rubric scores; nil means "not scored".
type Criteria struct {
	TaskAchievement   *float64 `json:"task_achievement_score,omitempty" validate:"omitempty,min=0,max=9"`
	CoherenceCohesion *float64 `json:"coherence_score,omitempty" validate:"omitempty,min=0,max=9"`
	LexicalResource   *float64 `json:"lexical_score,omitempty" validate:"omitempty,min=0,max=9"`
	GrammaticalRange  *float64 `json:"grammar_score,omitempty" validate:"omitempty,min=0,max=9"`
	Fluency           *float64 `json:"fluency_score,omitempty" validate:"omitempty,min=0,max=9"`
	Pronunciation     *float64 `json:"pronunciation_score,omitempty" validate:"omitempty,min=0,max=9"`
}

// Present returns the scores that are set, in declaration order.
func (c Criteria) Present() []float64 {
	var scores []float64
	for _, s := range []*float64{
		c.TaskAchievement, c.CoherenceCohesion, c.LexicalResource,
		c.GrammaticalRange, c.Fluency, c.Pronunciation,
	} {
		if s != nil {
			scores = append(scores, *s)
		}
	}
	return scores
}

// Mean is the plain arithmetic mean of the present scores. ok is false when none is set.
func (c Criteria) Mean() (mean float64, ok bool) {
	scores := c.Present()
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), true
}

type (
	// Submission is a subjective answer given during a test attempt.
	// There is at most one per (AttemptID, QuestionID).
	Submission struct {
		ID         string `json:"id"`
		UserID     string `json:"user_id"`
		AttemptID  string `json:"attempt_id"`
		QuestionID string `json:"question_id"`
		Skill      Skill  `json:"skill"`
		RawContent string `json:"raw_content"` // text or an audio URL
		Status     Status `json:"status"`
		Criteria
		OverallBandScore *float64   `json:"overall_band_score"`
		Feedback         string     `json:"feedback"`
		GradedBy         string     `json:"graded_by"`
		GradedAt         *time.Time `json:"graded_at"`
		CreatedAt        time.Time  `json:"created_at"`
		UpdatedAt        time.Time  `json:"updated_at"`
	}

	// Standalone is a writing/speaking practice answer, unique per (UserID, ExerciseID).
	Standalone struct {
		ID         string `json:"id"`
		UserID     string `json:"user_id"`
		ExerciseID string `json:"exercise_id"`
		Skill      Skill  `json:"skill"`
		Content    string `json:"content"`
		Status     Status `json:"status"`
		Criteria
		OverallBandScore *float64   `json:"overall_band_score"`
		Feedback         string     `json:"feedback"`
		GradedBy         string     `json:"graded_by"`
		GradedAt         *time.Time `json:"graded_at"`
		CreatedAt        time.Time  `json:"created_at"`
		UpdatedAt        time.Time  `json:"updated_at"`
	}
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("submission")
	ErrStandaloneNotFound = core.NewNotFoundError("practice submission")
	ErrAlreadySubmitted   = errors.New("this exercise has already been submitted")
)
