package reconcile

import (
	"context"
	"sort"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/submission"
)

type (
	Repository interface {
		// ListDuplicateSubmissions returns every submission sharing its (user, attempt, question) with another row.
		ListDuplicateSubmissions(ctx context.Context) ([]submission.Submission, error)
		DeleteSubmissions(ctx context.Context, ids []string) (removed int, err error)
	}

	Key struct {
		UserID     string `json:"user_id"`
		AttemptID  string `json:"attempt_id"`
		QuestionID string `json:"question_id"`
	}

	Group struct {
		Key     Key                     `json:"key"`
		Kept    submission.Submission   `json:"kept"`
		Removed []submission.Submission `json:"removed"`
	}

	Report struct {
		DryRun      bool    `json:"dry_run"`
		GroupsFound int     `json:"groups_found"`
		RowsRemoved int     `json:"rows_removed"`
		Groups      []Group `json:"groups"`
	}

	// Reconciler removes duplicate test submissions left over by legacy writes.
	Reconciler struct {
		repo   Repository
		logger core.Logger
	}
)

func NewReconciler(repo Repository, logger core.Logger) *Reconciler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Reconciler{repo: repo, logger: logger}
}

// rank orders subs from the row to keep to the first row to remove:
// highest status priority first, then most recently created.
func rank(subs []submission.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		pi, pj := subs[i].Status.Priority(), subs[j].Status.Priority()
		if pi != pj {
			return pi > pj
		}
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].ID > subs[j].ID
	})
}

// Plan groups subs by key and picks the row to keep in each group with more than one row.
// Groups are sorted by key.
func Plan(subs []submission.Submission) []Group {
	byKey := make(map[Key][]submission.Submission)
	for _, s := range subs {
		k := Key{UserID: s.UserID, AttemptID: s.AttemptID, QuestionID: s.QuestionID}
		byKey[k] = append(byKey[k], s)
	}

	groups := make([]Group, 0, len(byKey))
	for k, rows := range byKey {
		if len(rows) < 2 {
			continue
		}
		rank(rows)
		groups = append(groups, Group{Key: k, Kept: rows[0], Removed: rows[1:]})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.AttemptID != b.AttemptID {
			return a.AttemptID < b.AttemptID
		}
		return a.QuestionID < b.QuestionID
	})
	return groups
}

// Reconcile finds duplicate submissions and, unless dryRun, deletes every duplicate but the kept one.
func (r *Reconciler) Reconcile(ctx context.Context, dryRun bool) (Report, error) {
	subs, err := r.repo.ListDuplicateSubmissions(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "listing duplicate submissions")
	}

	groups := Plan(subs)
	report := Report{DryRun: dryRun, GroupsFound: len(groups), Groups: groups}
	if dryRun || len(groups) == 0 {
		return report, nil
	}

	var ids []string
	for _, g := range groups {
		for _, s := range g.Removed {
			ids = append(ids, s.ID)
		}
	}
	removed, err := r.repo.DeleteSubmissions(ctx, ids)
	if err != nil {
		return Report{}, errors.Wrap(err, "deleting duplicate submissions")
	}
	report.RowsRemoved = removed

	r.logger.Warn("duplicate submissions removed", map[string]interface{}{
		"groups": report.GroupsFound, "rows_removed": removed,
	})
	return report, nil
}
