package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/reconcile"
)

// Reconciler is the duplicate-submission cleanup run by the scheduler.
type Reconciler interface {
	Reconcile(ctx context.Context, dryRun bool) (reconcile.Report, error)
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	reconciler Reconciler
	logger     core.Logger
	interval   time.Duration
	commit     bool
	timeout    time.Duration
}

func New(reconciler Reconciler, logger core.Logger, conf *core.Config) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(reconciler, "reconciler"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler:  s,
		reconciler: reconciler,
		logger:     logger,
		interval:   conf.Reconciler.Interval,
		commit:     conf.Reconciler.Commit,
		timeout:    conf.Reconciler.Interval,
	}
}

// Start schedules the reconciler and runs the jobs in the background.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return errors.New("reconciler interval must be positive")
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.reconcile); err != nil {
		return errors.Wrap(err, "scheduling reconciler")
	}
	s.scheduler.StartAsync()
	s.logger.Info(fmt.Sprintf("scheduler started: reconciling duplicates every %s (commit=%t)", s.interval, s.commit))
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.reconciler.Reconcile(ctx, !s.commit)
	if err != nil {
		s.logger.Error("scheduled reconcile failed", err)
		return
	}
	if report.GroupsFound > 0 {
		s.logger.Warn("duplicate submissions found", map[string]interface{}{
			"dry_run":      report.DryRun,
			"groups_found": report.GroupsFound,
			"rows_removed": report.RowsRemoved,
		})
	}
}
