package grading

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/submission"
	"github.com/trezcool/tathmini/core/user"
)

var (
	errInvalidInput     = errors.New("invalid input")
	errCannotGrade      = core.NewPermissionError("only teachers and admins can grade submissions")
	errMissingContent   = core.NewInvalidStateError("submission has no content to grade")
	errConcurrentUpdate = core.NewInvalidStateError("submission was modified concurrently, retry")
	errNotSubjective    = core.NewValidationError(
		errInvalidInput,
		core.FieldError{Field: "skill", Error: "only WRITING and SPEAKING exercises accept submissions"},
	)
)

type (
	Repository interface {
		GetSubmission(ctx context.Context, id string) (submission.Submission, error)
		// UpdateSubmission stores s only if the stored status still equals from.
		UpdateSubmission(ctx context.Context, s submission.Submission, from submission.Status) (updated bool, err error)

		ExerciseExists(ctx context.Context, exerciseID string) (bool, error)
		// InsertStandaloneIfAbsent is a no-op when (user, exercise) was already submitted.
		InsertStandaloneIfAbsent(ctx context.Context, s submission.Standalone) (created bool, err error)
		GetStandalone(ctx context.Context, id string) (submission.Standalone, error)
		GetStandaloneByExercise(ctx context.Context, userID, exerciseID string) (submission.Standalone, error)
		// UpdateStandalone stores s only if the stored status still equals from.
		UpdateStandalone(ctx context.Context, s submission.Standalone, from submission.Status) (updated bool, err error)
	}

	// GradeInput contains a grader's rubric scores for one submission.
	GradeInput struct {
		SubmissionID string              `json:"-"`
		Grader       user.Identity       `json:"-"`
		Criteria     submission.Criteria `json:"criteria"`
		Feedback     string              `json:"feedback"`
	}

	StandaloneInput struct {
		UserID     string           `json:"-" validate:"required,notblank"`
		ExerciseID string           `json:"-" validate:"required,notblank"`
		Skill      submission.Skill `json:"skill" validate:"required"`
		Content    string           `json:"content" validate:"required,notblank"`
	}

	Service struct {
		repo              Repository
		validator         *core.Validator
		logger            core.Logger
		minFeedbackLength int
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
		repo:              repo,
		validator:         validator,
		logger:            logger,
		minFeedbackLength: conf.Grading.MinFeedbackLength,
	}
}

// checkGrade validates everything about a grade that does not depend on the stored submission.
func (svc *Service) checkGrade(in *GradeInput) error {
	if !in.Grader.CanGrade() {
		return errCannotGrade
	}
	in.Feedback = core.CleanString(in.Feedback)

	var flds []core.FieldError
	if err := svc.validator.Struct(in.Criteria); err != nil {
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			return err
		}
		flds = append(flds, vErr.Fields...)
	}
	if n := utf8.RuneCountInString(in.Feedback); n < svc.minFeedbackLength {
		flds = append(flds, core.FieldError{
			Field: "feedback",
			Error: fmt.Sprintf("feedback must be at least %d characters long", svc.minFeedbackLength),
		})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errInvalidInput, flds...)
	}
	return nil
}

// GradeSubmission scores a test submission. The overall band is the plain mean of the given criteria.
// Regrading overwrites the previous grade.
func (svc *Service) GradeSubmission(ctx context.Context, in GradeInput) (submission.Submission, error) {
	if err := svc.checkGrade(&in); err != nil {
		return submission.Submission{}, err
	}
	overall, ok := in.Criteria.Mean()
	if !ok {
		return submission.Submission{}, core.NewValidationError(
			errInvalidInput,
			core.FieldError{Field: "criteria", Error: "at least one criteria score is required"},
		)
	}

	sub, err := svc.repo.GetSubmission(ctx, core.CleanString(in.SubmissionID))
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "getting submission")
	}
	if core.CleanString(sub.RawContent) == "" {
		return submission.Submission{}, errMissingContent
	}

	from := sub.Status
	if err = submission.Transition(from, submission.StatusGraded); err != nil {
		return submission.Submission{}, err
	}
	now := core.NowFunc()
	sub.Status = submission.StatusGraded
	sub.Criteria = in.Criteria
	sub.OverallBandScore = &overall
	sub.Feedback = in.Feedback
	sub.GradedBy = in.Grader.UserID
	sub.GradedAt = &now
	sub.UpdatedAt = now

	if err = svc.updateSubmission(ctx, sub, from); err != nil {
		return submission.Submission{}, err
	}
	svc.logger.Info("submission graded", map[string]interface{}{
		"submission_id": sub.ID, "overall_band_score": overall,
	}, in.Grader)
	return sub, nil
}

func (svc *Service) updateSubmission(ctx context.Context, sub submission.Submission, from submission.Status) error {
	updated, err := svc.repo.UpdateSubmission(ctx, sub, from)
	if err != nil {
		return errors.Wrap(err, "updating submission")
	}
	if !updated {
		return errConcurrentUpdate
	}
	return nil
}

func (svc *Service) moveSubmission(ctx context.Context, id string, grader user.Identity, to submission.Status) (submission.Submission, error) {
	if !grader.CanGrade() {
		return submission.Submission{}, errCannotGrade
	}
	sub, err := svc.repo.GetSubmission(ctx, core.CleanString(id))
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "getting submission")
	}
	from := sub.Status
	if err = submission.Transition(from, to); err != nil {
		return submission.Submission{}, err
	}
	sub.Status = to
	sub.UpdatedAt = core.NowFunc()
	if err = svc.updateSubmission(ctx, sub, from); err != nil {
		return submission.Submission{}, err
	}
	return sub, nil
}

// ClaimSubmission marks a pending submission as being graded.
func (svc *Service) ClaimSubmission(ctx context.Context, id string, grader user.Identity) (submission.Submission, error) {
	return svc.moveSubmission(ctx, id, grader, submission.StatusGrading)
}

// ReleaseSubmission puts a claimed submission back in the queue.
func (svc *Service) ReleaseSubmission(ctx context.Context, id string, grader user.Identity) (submission.Submission, error) {
	return svc.moveSubmission(ctx, id, grader, submission.StatusPending)
}

// ReturnSubmission hands a graded submission back to the student.
func (svc *Service) ReturnSubmission(ctx context.Context, id string, grader user.Identity) (submission.Submission, error) {
	return svc.moveSubmission(ctx, id, grader, submission.StatusReturned)
}

// SubmitStandalone stores a practice answer. A second submission for the same exercise is a
// *core.ConflictError carrying the existing row.
func (svc *Service) SubmitStandalone(ctx context.Context, in StandaloneInput) (submission.Standalone, error) {
	in.UserID = core.CleanString(in.UserID)
	in.ExerciseID = core.CleanString(in.ExerciseID)
	if err := svc.validator.Struct(in); err != nil {
		return submission.Standalone{}, err
	}
	if !in.Skill.Subjective() {
		return submission.Standalone{}, errNotSubjective
	}

	exists, err := svc.repo.ExerciseExists(ctx, in.ExerciseID)
	if err != nil {
		return submission.Standalone{}, errors.Wrap(err, "checking exercise")
	}
	if !exists {
		return submission.Standalone{}, core.NewNotFoundError("exercise")
	}

	now := core.NowFunc()
	sa := submission.Standalone{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		ExerciseID: in.ExerciseID,
		Skill:      in.Skill,
		Content:    in.Content,
		Status:     submission.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := svc.repo.InsertStandaloneIfAbsent(ctx, sa)
	if err != nil {
		return submission.Standalone{}, errors.Wrap(err, "creating practice submission")
	}
	if !created {
		existing, err := svc.repo.GetStandaloneByExercise(ctx, in.UserID, in.ExerciseID)
		if err != nil {
			return submission.Standalone{}, errors.Wrap(err, "getting practice submission")
		}
		return existing, core.NewConflictError(submission.ErrAlreadySubmitted, existing)
	}
	return sa, nil
}

// standaloneCriteria picks the four scores a practice submission of skill is graded on.
// It reports the names of the missing ones.
func standaloneCriteria(skill submission.Skill, c submission.Criteria) (submission.Criteria, []string) {
	type criterion struct {
		name  string
		score *float64
	}
	var want []criterion
	switch skill {
	case submission.SkillWriting:
		want = []criterion{
			{"task_achievement_score", c.TaskAchievement},
			{"coherence_score", c.CoherenceCohesion},
			{"lexical_score", c.LexicalResource},
			{"grammar_score", c.GrammaticalRange},
		}
	case submission.SkillSpeaking:
		want = []criterion{
			{"fluency_score", c.Fluency},
			{"lexical_score", c.LexicalResource},
			{"grammar_score", c.GrammaticalRange},
			{"pronunciation_score", c.Pronunciation},
		}
	}

	var missing []string
	for _, cr := range want {
		if cr.score == nil {
			missing = append(missing, cr.name)
		}
	}

	picked := submission.Criteria{LexicalResource: c.LexicalResource, GrammaticalRange: c.GrammaticalRange}
	if skill == submission.SkillWriting {
		picked.TaskAchievement = c.TaskAchievement
		picked.CoherenceCohesion = c.CoherenceCohesion
	} else {
		picked.Fluency = c.Fluency
		picked.Pronunciation = c.Pronunciation
	}
	return picked, missing
}

// GradeStandalone scores a practice submission on the four criteria of its skill.
func (svc *Service) GradeStandalone(ctx context.Context, in GradeInput) (submission.Standalone, error) {
	if err := svc.checkGrade(&in); err != nil {
		return submission.Standalone{}, err
	}

	sa, err := svc.repo.GetStandalone(ctx, core.CleanString(in.SubmissionID))
	if err != nil {
		return submission.Standalone{}, errors.Wrap(err, "getting practice submission")
	}
	criteria, missing := standaloneCriteria(sa.Skill, in.Criteria)
	if len(missing) > 0 {
		flds := make([]core.FieldError, 0, len(missing))
		for _, name := range missing {
			flds = append(flds, core.FieldError{Field: name, Error: "this field is required"})
		}
		return submission.Standalone{}, core.NewValidationError(errInvalidInput, flds...)
	}
	if core.CleanString(sa.Content) == "" {
		return submission.Standalone{}, errMissingContent
	}

	from := sa.Status
	if err = submission.Transition(from, submission.StatusGraded); err != nil {
		return submission.Standalone{}, err
	}
	overall, _ := criteria.Mean()
	now := core.NowFunc()
	sa.Status = submission.StatusGraded
	sa.Criteria = criteria
	sa.OverallBandScore = &overall
	sa.Feedback = in.Feedback
	sa.GradedBy = in.Grader.UserID
	sa.GradedAt = &now
	sa.UpdatedAt = now

	updated, err := svc.repo.UpdateStandalone(ctx, sa, from)
	if err != nil {
		return submission.Standalone{}, errors.Wrap(err, "updating practice submission")
	}
	if !updated {
		return submission.Standalone{}, errConcurrentUpdate
	}
	svc.logger.Info("practice submission graded", map[string]interface{}{
		"submission_id": sa.ID, "overall_band_score": overall,
	}, in.Grader)
	return sa, nil
}
