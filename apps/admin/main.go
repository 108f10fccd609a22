package main

import (
	"log"
	"os"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/services/logger"
	"github.com/trezcool/tathmini/storage/database"
	sqlxrepos "github.com/trezcool/tathmini/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	if conf.Database.Engine == "memory" {
		logger.Fatal("the admin commands need a postgres or sqlite3 database")
	}

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)

	// start CLI
	cli := commandLine{
		db:         db,
		reconciler: reconcile.NewReconciler(sqlxrepos.NewReconcileRepository(db), appLogger),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
