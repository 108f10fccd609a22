package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/submission"
)

type attemptRepository struct {
	db *sqlx.DB
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *sqlx.DB) attempt.Repository {
	return &attemptRepository{db: db}
}

type questionRow struct {
	ID            string `db:"id"`
	TestID        string `db:"test_id"`
	Skill         string `db:"skill"`
	CorrectOption string `db:"correct_option"`
	Points        int    `db:"points"`
}

func (r questionRow) toQuestion() attempt.Question {
	return attempt.Question{
		ID:            r.ID,
		TestID:        r.TestID,
		Skill:         submission.Skill(r.Skill),
		CorrectOption: r.CorrectOption,
		Points:        r.Points,
	}
}

func (repo *attemptRepository) GetTest(ctx context.Context, id string) (attempt.Test, error) {
	var t attempt.Test
	err := repo.db.GetContext(ctx, &t.ID, repo.db.Rebind("SELECT id FROM tests WHERE id = ?"), id)
	if isNoRows(err) {
		return attempt.Test{}, attempt.ErrTestNotFound
	}
	return t, errors.Wrap(err, "selecting test")
}

func (repo *attemptRepository) GetQuestion(ctx context.Context, id string) (attempt.Question, error) {
	var row questionRow
	q := repo.db.Rebind("SELECT id, test_id, skill, correct_option, points FROM questions WHERE id = ?")
	err := repo.db.GetContext(ctx, &row, q, id)
	if isNoRows(err) {
		return attempt.Question{}, attempt.ErrQuestionNotFound
	}
	if err != nil {
		return attempt.Question{}, errors.Wrap(err, "selecting question")
	}
	return row.toQuestion(), nil
}

func selectTestQuestions(ctx context.Context, db sqlx.ExtContext, testID string) ([]attempt.Question, error) {
	var rows []questionRow
	q := db.Rebind("SELECT id, test_id, skill, correct_option, points FROM questions WHERE test_id = ? ORDER BY id")
	if err := sqlx.SelectContext(ctx, db, &rows, q, testID); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	qs := make([]attempt.Question, 0, len(rows))
	for _, r := range rows {
		qs = append(qs, r.toQuestion())
	}
	return qs, nil
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(`
		INSERT INTO attempts (id, user_id, test_id, status, started_at) VALUES (?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.TestID, string(a.Status), a.StartedAt,
	)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo *attemptRepository) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind("SELECT "+attemptCols+" FROM attempts WHERE id = ?"), id)
	if isNoRows(err) {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "selecting attempt")
	}
	return row.toAttempt(), nil
}

func (repo *attemptRepository) ListUserAttempts(ctx context.Context, userID, testID string) ([]attempt.Attempt, error) {
	var rows []attemptRow
	q := repo.db.Rebind("SELECT " + attemptCols + " FROM attempts WHERE user_id = ? AND test_id = ? ORDER BY started_at DESC")
	if err := repo.db.SelectContext(ctx, &rows, q, userID, testID); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	atts := make([]attempt.Attempt, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, r.toAttempt())
	}
	return atts, nil
}

// lockAttempt selects the attempt, holding its row until the end of tx.
// Answers and completion both go through it, so they never interleave.
func (repo *attemptRepository) lockAttempt(ctx context.Context, tx *sqlx.Tx, id string) (attempt.Attempt, error) {
	var row attemptRow
	err := tx.GetContext(ctx, &row, tx.Rebind("SELECT "+attemptCols+" FROM attempts WHERE id = ?"+forUpdate(repo.db)), id)
	if isNoRows(err) {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "locking attempt")
	}
	return row.toAttempt(), nil
}

func (repo *attemptRepository) UpsertAnswer(
	ctx context.Context,
	a attempt.Answer,
	draft *submission.Submission,
) (bool, *submission.Submission, error) {
	var (
		stored bool
		sub    *submission.Submission
	)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		att, err := repo.lockAttempt(ctx, tx, a.AttemptID)
		if errors.Cause(err) == attempt.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if att.Status != attempt.StatusInProgress {
			return nil
		}

		if draft != nil {
			if sub, err = repo.saveDraft(ctx, tx, *draft); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO answers (attempt_id, question_id, selection, text, is_correct, points_earned, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (attempt_id, question_id) DO UPDATE SET
				selection = excluded.selection,
				text = excluded.text,
				is_correct = excluded.is_correct,
				points_earned = excluded.points_earned,
				updated_at = excluded.updated_at`),
			a.AttemptID, a.QuestionID, a.Selection, a.Text, a.IsCorrect, a.PointsEarned, a.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "upserting answer")
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return stored, sub, nil
}

// saveDraft mirrors a subjective answer into its PENDING submission.
func (repo *attemptRepository) saveDraft(ctx context.Context, tx *sqlx.Tx, draft submission.Submission) (*submission.Submission, error) {
	existing, err := getSubmissionByKey(ctx, tx, draft.AttemptID, draft.QuestionID)
	if isNoRows(err) {
		if draft.RawContent == "" {
			return nil, nil
		}
		if _, err = tx.NamedExecContext(ctx, insertSubmission, newSubmissionRow(draft)); err != nil {
			return nil, errors.Wrap(err, "inserting submission")
		}
		return &draft, nil
	}
	if err != nil {
		return nil, err
	}

	pending := string(submission.StatusPending)
	var n int64
	if draft.RawContent == "" {
		n, err = exec(ctx, tx, tx.Rebind("DELETE FROM submissions WHERE id = ? AND status = ?"), existing.ID, pending)
	} else {
		n, err = exec(ctx, tx, tx.Rebind("UPDATE submissions SET raw_content = ?, updated_at = ? WHERE id = ? AND status = ?"),
			draft.RawContent, draft.UpdatedAt, existing.ID, pending)
	}
	if err != nil {
		return nil, errors.Wrap(err, "saving submission")
	}
	if n == 0 {
		// claimed by a grader
		return nil, attempt.ErrSubmissionLocked
	}
	if draft.RawContent == "" {
		return nil, nil
	}
	existing.RawContent = draft.RawContent
	existing.UpdatedAt = draft.UpdatedAt
	return &existing, nil
}

func (repo *attemptRepository) CompleteAttempt(
	ctx context.Context,
	id string,
	score attempt.ScoreFunc,
) (attempt.Attempt, bool, error) {
	var (
		att       attempt.Attempt
		completed bool
	)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stored, err := repo.lockAttempt(ctx, tx, id)
		if err != nil {
			return err
		}
		att = stored
		if stored.Status != attempt.StatusInProgress {
			return nil
		}

		questions, err := selectTestQuestions(ctx, tx, stored.TestID)
		if err != nil {
			return err
		}
		answers, err := selectAnswers(ctx, tx, id)
		if err != nil {
			return err
		}
		subs, err := selectAttemptSubmissions(ctx, tx, id)
		if err != nil {
			return err
		}

		done, queue := score(stored, questions, answers, subs)
		for _, s := range queue {
			_, err = tx.NamedExecContext(ctx, insertSubmission+`
				ON CONFLICT (attempt_id, question_id) DO NOTHING`,
				newSubmissionRow(s),
			)
			if err != nil {
				return errors.Wrap(err, "inserting submission")
			}
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE attempts
			SET status = ?, score = ?, total_points = ?, band_score = ?, pending_submissions = ?, completed_at = ?
			WHERE id = ?`),
			string(done.Status), done.Score, done.TotalPoints, done.BandScore, done.PendingSubmissions, done.CompletedAt,
			id,
		)
		if err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		att, completed = done, true
		return nil
	})
	if err != nil {
		return attempt.Attempt{}, false, err
	}
	return att, completed, nil
}

func selectAnswers(ctx context.Context, db sqlx.ExtContext, attemptID string) ([]attempt.Answer, error) {
	rows, err := db.QueryxContext(ctx, db.Rebind(`
		SELECT attempt_id, question_id, selection, text, is_correct, points_earned, updated_at
		FROM answers WHERE attempt_id = ? ORDER BY question_id`), attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}
	defer func() { _ = rows.Close() }()

	var answers []attempt.Answer
	for rows.Next() {
		var a attempt.Answer
		if err = rows.Scan(&a.AttemptID, &a.QuestionID, &a.Selection, &a.Text, &a.IsCorrect, &a.PointsEarned, &a.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning answer")
		}
		a.UpdatedAt = a.UpdatedAt.UTC()
		answers = append(answers, a)
	}
	return answers, errors.Wrap(rows.Err(), "iterating answers")
}

func getSubmissionByKey(ctx context.Context, db sqlx.ExtContext, attemptID, questionID string) (submission.Submission, error) {
	var row submissionRow
	q := db.Rebind("SELECT " + submissionCols + " FROM submissions WHERE attempt_id = ? AND question_id = ?")
	if err := sqlx.GetContext(ctx, db, &row, q, attemptID, questionID); err != nil {
		return submission.Submission{}, errors.Wrap(err, "selecting submission")
	}
	return row.toSubmission(), nil
}

const insertSubmission = `
	INSERT INTO submissions (` + submissionCols + `)
	VALUES (:id, :user_id, :attempt_id, :question_id, :skill, :raw_content, :status,
		:task_achievement_score, :coherence_score, :lexical_score, :grammar_score, :fluency_score,
		:pronunciation_score, :overall_band_score, :feedback, :graded_by, :graded_at, :created_at, :updated_at)`

func selectAttemptSubmissions(ctx context.Context, db sqlx.ExtContext, attemptID string) ([]submission.Submission, error) {
	var rows []submissionRow
	q := db.Rebind("SELECT " + submissionCols + " FROM submissions WHERE attempt_id = ? ORDER BY question_id")
	if err := sqlx.SelectContext(ctx, db, &rows, q, attemptID); err != nil {
		return nil, errors.Wrap(err, "selecting submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubmission())
	}
	return subs, nil
}
