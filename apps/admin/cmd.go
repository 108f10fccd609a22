package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/tathmini/core/reconcile"
)

var errHelp = errors.New("help provided")

type reconciler interface {
	Reconcile(ctx context.Context, dryRun bool) (reconcile.Report, error)
}

type commandLine struct {
	db         *sqlx.DB
	reconciler reconciler
	stdin      io.Reader
	stdout     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.stdout, "Usage:")
	fmt.Fprintln(cli.stdout, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.stdout, "  reconcile [-commit] [-yes] [-out FILE.xlsx] - report (and optionally remove) duplicate test submissions")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileCmd.SetOutput(cli.stdout)
	reconcileCommit := reconcileCmd.Bool("commit", false, "Delete the duplicates. Without it, only report them.")
	reconcileYes := reconcileCmd.Bool("yes", false, "Do not ask for confirmation before deleting.")
	reconcileOut := reconcileCmd.String("out", "", "Write the report to this .xlsx file.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.reconcile(reconcileOpts{
			commit:  *reconcileCommit,
			confirm: !*reconcileYes,
			out:     *reconcileOut,
		})
	default:
		cli.printUsage()
		return errHelp
	}
}
