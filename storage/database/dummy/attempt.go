package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/submission"
)

type attemptRepository struct {
	db *DB
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) attempt.Repository {
	return &attemptRepository{db: db}
}

func (repo *attemptRepository) GetTest(_ context.Context, id string) (attempt.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.tests[id]; ok {
		return t, nil
	}
	return attempt.Test{}, attempt.ErrTestNotFound
}

func (repo *attemptRepository) GetQuestion(_ context.Context, id string) (attempt.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return q, nil
	}
	return attempt.Question{}, attempt.ErrQuestionNotFound
}

func (db *DB) testQuestions(testID string) []attempt.Question {
	var qs []attempt.Question
	for _, q := range db.questions {
		if q.TestID == testID {
			qs = append(qs, q)
		}
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	return qs
}

func (repo *attemptRepository) CreateAttempt(_ context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.attempts[a.ID] = a
	return a, nil
}

func (repo *attemptRepository) GetAttempt(_ context.Context, id string) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.attempts[id]; ok {
		return a, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) ListUserAttempts(_ context.Context, userID, testID string) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	atts := make([]attempt.Attempt, 0)
	for _, a := range repo.db.attempts {
		if a.UserID == userID && a.TestID == testID {
			atts = append(atts, a)
		}
	}
	// most recent first
	sort.Slice(atts, func(i, j int) bool { return atts[i].StartedAt.After(atts[j].StartedAt) })
	return atts, nil
}

func (repo *attemptRepository) UpsertAnswer(
	_ context.Context,
	a attempt.Answer,
	draft *submission.Submission,
) (bool, *submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if att, ok := repo.db.attempts[a.AttemptID]; !ok || att.Status != attempt.StatusInProgress {
		return false, nil, nil
	}

	var sub *submission.Submission
	if draft != nil {
		existing, ok := repo.db.submissionFor(a.AttemptID, a.QuestionID)
		switch {
		case ok && existing.Status != submission.StatusPending:
			return false, nil, attempt.ErrSubmissionLocked
		case draft.RawContent == "":
			if ok {
				delete(repo.db.submissions, existing.ID)
			}
		case ok:
			existing.RawContent = draft.RawContent
			existing.UpdatedAt = draft.UpdatedAt
			repo.db.submissions[existing.ID] = existing
			sub = &existing
		default:
			s := *draft
			repo.db.submissions[s.ID] = s
			sub = &s
		}
	}
	repo.db.answers[pair{a.AttemptID, a.QuestionID}] = a
	return true, sub, nil
}

func (repo *attemptRepository) CompleteAttempt(
	_ context.Context,
	id string,
	score attempt.ScoreFunc,
) (attempt.Attempt, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.attempts[id]
	if !ok {
		return attempt.Attempt{}, false, attempt.ErrNotFound
	}
	if stored.Status != attempt.StatusInProgress {
		return stored, false, nil
	}

	done, queue := score(stored, repo.db.testQuestions(stored.TestID), repo.db.attemptAnswers(id), repo.db.attemptSubmissions(id))
	for _, s := range queue {
		if _, ok := repo.db.submissionFor(s.AttemptID, s.QuestionID); !ok {
			repo.db.submissions[s.ID] = s
		}
	}
	repo.db.attempts[id] = done
	return done, true, nil
}

func (db *DB) attemptAnswers(attemptID string) []attempt.Answer {
	var answers []attempt.Answer
	for k, a := range db.answers {
		if k.a == attemptID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	return answers
}

// submissionFor returns the first stored submission for (attempt, question).
func (db *DB) submissionFor(attemptID, questionID string) (submission.Submission, bool) {
	for _, s := range db.submissions {
		if s.AttemptID == attemptID && s.QuestionID == questionID {
			return s, true
		}
	}
	return submission.Submission{}, false
}

func (db *DB) attemptSubmissions(attemptID string) []submission.Submission {
	var subs []submission.Submission
	for _, s := range db.submissions {
		if s.AttemptID == attemptID {
			subs = append(subs, s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].QuestionID < subs[j].QuestionID })
	return subs
}
