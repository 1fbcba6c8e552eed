package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/ulearn/core/history"
)

func (cli *commandLine) showHistory(runID string, f history.Filter) error {
	ctx := context.Background()
	var (
		recs []history.Record
		err  error
	)
	if runID != "" {
		recs, err = cli.history.Run(ctx, runID)
	} else {
		recs, err = cli.history.Query(ctx, f)
	}
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cli.out, "  (none)")
		return nil
	}
	for _, rec := range recs {
		line := fmt.Sprintf("%s  %-8s  %-10s  %s", rec.CreatedAt.Local().Format(time.DateTime), rec.Kind, rec.Outcome, rec.Course)
		if rec.Detail != "" {
			line += " - " + rec.Detail
		}
		fmt.Fprintln(cli.out, line)
	}
	return nil
}
