package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/term"

	"github.com/trezcool/tathmini/core/reconcile"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errNotConfirmed = errors.New("aborted: duplicates were not deleted")
	errNoTerminal   = errors.New("cannot ask for confirmation without a terminal; pass -yes")

	reportSheet   = "Sheet1"
	reportHeaders = []string{"user_id", "attempt_id", "question_id", "submission_id", "status", "created_at", "action"}
)

type reconcileOpts struct {
	commit  bool
	confirm bool
	out     string
}

func (cli *commandLine) reconcile(opts reconcileOpts) error {
	ctx := context.Background()

	if opts.commit && opts.confirm {
		report, err := cli.reconciler.Reconcile(ctx, true)
		if err != nil {
			return err
		}
		if report.GroupsFound == 0 {
			cli.printReport(report)
			return cli.exportReport(report, opts.out)
		}
		ok, err := cli.askConfirmation(report)
		if err != nil {
			return err
		}
		if !ok {
			return errNotConfirmed
		}
	}

	report, err := cli.reconciler.Reconcile(ctx, !opts.commit)
	if err != nil {
		return err
	}
	cli.printReport(report)
	return cli.exportReport(report, opts.out)
}

func (cli *commandLine) askConfirmation(plan reconcile.Report) (bool, error) {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return false, errNoTerminal
	}

	removing := 0
	for _, g := range plan.Groups {
		removing += len(g.Removed)
	}
	fmt.Fprintf(cli.stdout, "%d duplicate groups found; %d submissions will be deleted. Continue? [y/N] ", plan.GroupsFound, removing)

	answer, err := bufio.NewReader(cli.stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false, errors.Wrap(err, "reading confirmation")
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (cli *commandLine) printReport(report reconcile.Report) {
	mode := "committed"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(cli.stdout, "reconcile (%s): %d duplicate groups, %d rows removed\n", mode, report.GroupsFound, report.RowsRemoved)
	for _, g := range report.Groups {
		fmt.Fprintf(cli.stdout, "  user=%s attempt=%s question=%s kept=%s (%s) removed=%d\n",
			g.Key.UserID, g.Key.AttemptID, g.Key.QuestionID, g.Kept.ID, g.Kept.Status, len(g.Removed))
	}
}

// exportReport writes one row per submission of every duplicate group.
func (cli *commandLine) exportReport(report reconcile.Report, path string) error {
	if path == "" {
		return nil
	}

	f := excelize.NewFile()
	defer f.Close()

	row := 1
	setRow := func(values ...interface{}) error {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err = f.SetCellValue(reportSheet, cell, v); err != nil {
				return err
			}
		}
		row++
		return nil
	}

	headers := make([]interface{}, 0, len(reportHeaders))
	for _, h := range reportHeaders {
		headers = append(headers, h)
	}
	if err := setRow(headers...); err != nil {
		return errors.Wrap(err, "writing report headers")
	}

	removedAction := "removed"
	if report.DryRun {
		removedAction = "would remove"
	}
	for _, g := range report.Groups {
		k := g.Key
		if err := setRow(k.UserID, k.AttemptID, k.QuestionID, g.Kept.ID, string(g.Kept.Status), g.Kept.CreatedAt.Format("2006-01-02 15:04:05"), "kept"); err != nil {
			return errors.Wrap(err, "writing report row")
		}
		for _, s := range g.Removed {
			if err := setRow(k.UserID, k.AttemptID, k.QuestionID, s.ID, string(s.Status), s.CreatedAt.Format("2006-01-02 15:04:05"), removedAction); err != nil {
				return errors.Wrap(err, "writing report row")
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "saving report")
	}
	fmt.Fprintf(cli.stdout, "report written to %s\n", path)
	return nil
}
