package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/submission"
	"github.com/trezcool/tathmini/storage/database/dummy"
	"github.com/trezcool/tathmini/tests"
)

var (
	t1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t2.Add(time.Minute)
)

func sub(id, attemptID string, status submission.Status, createdAt time.Time) submission.Submission {
	return submission.Submission{
		ID:         id,
		UserID:     "u1",
		AttemptID:  attemptID,
		QuestionID: "q1",
		Skill:      submission.SkillWriting,
		RawContent: "essay",
		Status:     status,
		CreatedAt:  createdAt,
	}
}

func setup(t *testing.T, subs ...submission.Submission) (*reconcile.Reconciler, *dummydb.DB) {
	db := testutil.OpenDummyDB(t)
	db.SeedSubmissions(subs...)
	return reconcile.NewReconciler(dummydb.NewReconcileRepository(db), testutil.NewLogger()), db
}

func ids(subs []submission.Submission) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.ID)
	}
	return out
}

func TestReconciler_Reconcile(t *testing.T) {
	r, db := setup(t,
		sub("p1", "a1", submission.StatusPending, t1),
		sub("g", "a1", submission.StatusGraded, t2),
		sub("p3", "a1", submission.StatusPending, t3),
		sub("alone", "a2", submission.StatusPending, t1),
	)
	ctx := context.Background()

	dry, err := r.Reconcile(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 1, dry.GroupsFound)
	assert.Equal(t, 0, dry.RowsRemoved)
	require.Len(t, dry.Groups, 1)
	assert.Equal(t, "g", dry.Groups[0].Kept.ID)
	assert.ElementsMatch(t, []string{"p1", "p3"}, ids(dry.Groups[0].Removed))
	assert.Len(t, db.Submissions(), 4, "dry run deletes nothing")

	rep, err := r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.False(t, rep.DryRun)
	assert.Equal(t, 1, rep.GroupsFound)
	assert.Equal(t, 2, rep.RowsRemoved)
	assert.ElementsMatch(t, []string{"g", "alone"}, ids(db.Submissions()))

	again, err := r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, again.GroupsFound)
	assert.Equal(t, 0, again.RowsRemoved)
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		subs     []submission.Submission
		wantKept string
	}{
		{
			name: "priority wins over recency",
			subs: []submission.Submission{
				sub("ret", "a1", submission.StatusReturned, t1),
				sub("grading", "a1", submission.StatusGrading, t3),
			},
			wantKept: "ret",
		},
		{
			name: "newest among equals",
			subs: []submission.Submission{
				sub("old", "a1", submission.StatusPending, t1),
				sub("new", "a1", submission.StatusPending, t3),
				sub("mid", "a1", submission.StatusPending, t2),
			},
			wantKept: "new",
		},
		{
			name: "graded beats returned",
			subs: []submission.Submission{
				sub("ret", "a1", submission.StatusReturned, t3),
				sub("gr", "a1", submission.StatusGraded, t1),
			},
			wantKept: "gr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := reconcile.Plan(tt.subs)
			require.Len(t, groups, 1)
			assert.Equal(t, tt.wantKept, groups[0].Kept.ID)
			assert.Len(t, groups[0].Removed, len(tt.subs)-1)
		})
	}

	assert.Empty(t, reconcile.Plan([]submission.Submission{sub("x", "a1", submission.StatusPending, t1)}))
}
