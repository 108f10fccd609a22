package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	"github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/services/logger"
	"github.com/trezcool/tathmini/services/scheduler"
	"github.com/trezcool/tathmini/storage/database"
	"github.com/trezcool/tathmini/storage/database/dummy"
	sqlxrepos "github.com/trezcool/tathmini/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBCloser releases the database opened for the repositories.
type DBCloser func() error

type Repositories struct {
	dig.Out
	Progress  progress.Repository
	Attempt   attempt.Repository
	Grading   grading.Repository
	Reconcile reconcile.Repository
	Closer    DBCloser
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newRepositories opens the configured store: postgres or sqlite3 through sqlx, or the in-memory one.
func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == "memory" {
		db, err := dummydb.Open()
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("opening memory database: %v", err), err)
		}
		loggerParam.Logger.Warn("using the in-memory database: data is lost on shutdown")
		return Repositories{
			Progress:  dummydb.NewProgressRepository(db),
			Attempt:   dummydb.NewAttemptRepository(db),
			Grading:   dummydb.NewGradingRepository(db),
			Reconcile: dummydb.NewReconcileRepository(db),
			Closer:    func() error { return nil },
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Repositories{
		Progress:  sqlxrepos.NewProgressRepository(db),
		Attempt:   sqlxrepos.NewAttemptRepository(db),
		Grading:   sqlxrepos.NewGradingRepository(db),
		Reconcile: sqlxrepos.NewReconcileRepository(db),
		Closer:    db.Close,
	}
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	progressSvc *progress.Service,
	attemptSvc *attempt.Service,
	gradingSvc *grading.Service,
	reconciler *reconcile.Reconciler,
) *echoapi.Server {
	return echoapi.NewServer(conf, logger, progressSvc, attemptSvc, gradingSvc, reconciler)
}

func newScheduler(reconciler *reconcile.Reconciler, logger core.Logger, conf *core.Config) *schedulersvc.Scheduler {
	return schedulersvc.New(reconciler, logger, conf)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(core.NewValidator))
	must(c.Provide(progress.NewService))
	must(c.Provide(attempt.NewService))
	must(c.Provide(grading.NewService))
	must(c.Provide(reconcile.NewReconciler))
	must(c.Provide(newServer))
	must(c.Provide(newScheduler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
