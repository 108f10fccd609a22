package attempt

import (
	"context"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/submission"
	"github.com/trezcool/tathmini/core/user"
)

var (
	// errors
	ErrTestNotFound     = core.NewNotFoundError("test")
	ErrQuestionNotFound = core.NewNotFoundError("question")
	ErrNotFound         = core.NewNotFoundError("attempt")
	ErrSubmissionLocked = core.NewInvalidStateError("submission is already being graded; the answer can no longer change")
	errNotOwner         = core.NewPermissionError("this attempt belongs to another user")
	errNotInProgress    = core.NewInvalidStateError("attempt is not in progress")
)

type (
	// ScoreFunc computes the result of att from its test questions, stored answers and submissions.
	// It returns the completed attempt and the submissions to queue.
	ScoreFunc func(att Attempt, questions []Question, answers []Answer, subs []submission.Submission) (Attempt, []submission.Submission)

	Repository interface {
		GetTest(ctx context.Context, id string) (Test, error)
		GetQuestion(ctx context.Context, id string) (Question, error)

		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		ListUserAttempts(ctx context.Context, userID, testID string) ([]Attempt, error)

		// UpsertAnswer stores the answer only while its attempt is IN_PROGRESS.
		// A non-nil draft is the submission of a subjective answer: it creates the (attempt, question)
		// submission or replaces its content, and an empty RawContent removes it.
		// It fails with ErrSubmissionLocked once that submission left PENDING.
		UpsertAnswer(ctx context.Context, a Answer, draft *submission.Submission) (stored bool, sub *submission.Submission, err error)

		// CompleteAttempt locks the attempt and, if it is still IN_PROGRESS, stores the result of score
		// along with the submissions it queues. Otherwise it returns the stored attempt untouched.
		CompleteAttempt(ctx context.Context, id string, score ScoreFunc) (att Attempt, completed bool, err error)
	}

	Service struct {
		repo      Repository
		validator *core.Validator
		logger    core.Logger
	}
)

func NewService(repo Repository, validator *core.Validator, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validator, "validator"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, validator: validator, logger: logger}
}

// StartAttempt opens a new attempt. Users may hold several attempts at the same test.
func (svc *Service) StartAttempt(ctx context.Context, userID, testID string) (Attempt, error) {
	userID = core.CleanString(userID)
	if userID == "" {
		return Attempt{}, core.NewValidationError(
			errors.New("invalid input"),
			core.FieldError{Field: "user_id", Error: "this field is required"},
		)
	}
	test, err := svc.repo.GetTest(ctx, core.CleanString(testID))
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting test")
	}

	att, err := svc.repo.CreateAttempt(ctx, Attempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		TestID:    test.ID,
		Status:    StatusInProgress,
		StartedAt: core.NowFunc(),
	})
	if err != nil {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}
	return att, nil
}

// GetAttempt returns the attempt to its owner or to staff.
func (svc *Service) GetAttempt(ctx context.Context, attemptID string, caller user.Identity) (Attempt, error) {
	att, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting attempt")
	}
	if att.UserID != caller.UserID && !caller.CanGrade() {
		return Attempt{}, errNotOwner
	}
	return att, nil
}

func (svc *Service) ListUserAttempts(ctx context.Context, userID, testID string) ([]Attempt, error) {
	if _, err := svc.repo.GetTest(ctx, testID); err != nil {
		return nil, errors.Wrap(err, "getting test")
	}
	atts, err := svc.repo.ListUserAttempts(ctx, userID, testID)
	if err != nil {
		return nil, errors.Wrap(err, "listing attempts")
	}
	return atts, nil
}

// SubmitAnswer records the answer to one question. Objective answers are graded on the spot;
// subjective ones are queued for human grading.
func (svc *Service) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (AnswerResult, error) {
	in.AttemptID = core.CleanString(in.AttemptID)
	in.QuestionID = core.CleanString(in.QuestionID)
	in.UserID = core.CleanString(in.UserID)
	if err := svc.validator.Struct(in); err != nil {
		return AnswerResult{}, err
	}

	att, err := svc.repo.GetAttempt(ctx, in.AttemptID)
	if err != nil {
		return AnswerResult{}, errors.Wrap(err, "getting attempt")
	}
	if att.UserID != in.UserID {
		return AnswerResult{}, errNotOwner
	}
	if att.Status != StatusInProgress {
		return AnswerResult{}, errNotInProgress
	}

	q, err := svc.repo.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return AnswerResult{}, errors.Wrap(err, "getting question")
	}
	if q.TestID != att.TestID {
		return AnswerResult{}, core.NewValidationError(
			errors.New("invalid input"),
			core.FieldError{Field: "question_id", Error: "question does not belong to this test"},
		)
	}

	ans := Answer{
		AttemptID:  att.ID,
		QuestionID: q.ID,
		UpdatedAt:  core.NowFunc(),
	}
	if q.Skill.Subjective() {
		ans.Text = in.Text
	} else {
		in.Selection = core.CleanString(in.Selection)
		if in.Selection == "" {
			return AnswerResult{}, core.NewValidationError(
				errors.New("invalid input"),
				core.FieldError{Field: "selection", Error: "this field is required"},
			)
		}
		ans.Selection = in.Selection
		ans.IsCorrect = in.Selection == q.CorrectOption
		if ans.IsCorrect {
			ans.PointsEarned = q.Points
		}
	}

	var draft *submission.Submission
	if q.Skill.Subjective() {
		content := ans.Text
		if core.CleanString(content) == "" {
			content = ""
		}
		d := svc.newSubmission(att, q, content)
		draft = &d
	}

	stored, sub, err := svc.repo.UpsertAnswer(ctx, ans, draft)
	if err != nil {
		return AnswerResult{}, errors.Wrap(err, "saving answer")
	}
	if !stored {
		return AnswerResult{}, errNotInProgress
	}
	return AnswerResult{Answer: ans, Submission: sub}, nil
}

func (svc *Service) newSubmission(att Attempt, q Question, content string) submission.Submission {
	now := core.NowFunc()
	return submission.Submission{
		ID:         uuid.NewString(),
		UserID:     att.UserID,
		AttemptID:  att.ID,
		QuestionID: q.ID,
		Skill:      q.Skill,
		RawContent: content,
		Status:     submission.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CompleteAttempt scores the attempt once. Completing an already completed attempt
// returns the stored result.
func (svc *Service) CompleteAttempt(ctx context.Context, attemptID string, caller user.Identity) (Summary, error) {
	att, err := svc.repo.GetAttempt(ctx, core.CleanString(attemptID))
	if err != nil {
		return Summary{}, errors.Wrap(err, "getting attempt")
	}
	if att.UserID != caller.UserID && !caller.IsAdmin() {
		return Summary{}, errNotOwner
	}
	if att.Status == StatusCompleted {
		return att.Summary(), nil
	}
	if err = Transition(att.Status, StatusCompleted); err != nil {
		return Summary{}, err
	}

	var queued int
	score := func(att Attempt, questions []Question, answers []Answer, subs []submission.Submission) (Attempt, []submission.Submission) {
		byID := make(map[string]Question, len(questions))
		for _, q := range questions {
			byID[q.ID] = q
			if !q.Skill.Subjective() {
				att.TotalPoints += q.Points
			}
		}
		existing := make(map[string]bool, len(subs))
		for _, s := range subs {
			existing[s.QuestionID] = true
			if s.Status.AwaitingGrade() {
				att.PendingSubmissions++
			}
		}

		var queue []submission.Submission
		for _, ans := range answers {
			q, ok := byID[ans.QuestionID]
			if !ok {
				continue
			}
			if !q.Skill.Subjective() {
				att.Score += ans.PointsEarned
				continue
			}
			if core.CleanString(ans.Text) == "" || existing[q.ID] {
				continue
			}
			queue = append(queue, svc.newSubmission(att, q, ans.Text))
		}
		att.PendingSubmissions += len(queue)
		queued = len(queue)

		now := core.NowFunc()
		att.BandScore = BandScore(att.Score, att.TotalPoints)
		att.Status = StatusCompleted
		att.CompletedAt = &now
		return att, queue
	}

	stored, completed, err := svc.repo.CompleteAttempt(ctx, att.ID, score)
	if err != nil {
		return Summary{}, errors.Wrap(err, "completing attempt")
	}
	if !completed {
		// lost the race to a concurrent completion
		if stored.Status != StatusCompleted {
			return Summary{}, errNotInProgress
		}
		return stored.Summary(), nil
	}

	svc.logger.Info("attempt completed", map[string]interface{}{
		"attempt_id": stored.ID, "user_id": stored.UserID, "band_score": stored.BandScore, "queued_submissions": queued,
	})
	return stored.Summary(), nil
}
