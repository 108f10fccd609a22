package schedulersvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/tests"
)

type fakeReconciler struct {
	mu   sync.Mutex
	runs []bool
}

func (f *fakeReconciler) Reconcile(_ context.Context, dryRun bool) (reconcile.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, dryRun)
	return reconcile.Report{DryRun: dryRun, GroupsFound: 1}, nil
}

func (f *fakeReconciler) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.runs...)
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name       string
		commit     bool
		wantDryRun bool
	}{
		{name: "dry run by default", wantDryRun: true},
		{name: "commit", commit: true, wantDryRun: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testutil.NewConfig()
			conf.Reconciler.Interval = 50 * time.Millisecond
			conf.Reconciler.Commit = tt.commit
			rec := new(fakeReconciler)

			s := New(rec, testutil.NewLogger(), conf)
			require.NoError(t, s.Start())
			defer s.Stop()

			// gocron runs the job immediately on start
			assert.Eventually(t, func() bool { return len(rec.calls()) > 0 }, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, tt.wantDryRun, rec.calls()[0])
		})
	}
}

func TestScheduler_Start_badInterval(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Reconciler.Interval = 0

	s := New(new(fakeReconciler), testutil.NewLogger(), conf)
	assert.Error(t, s.Start())
}
