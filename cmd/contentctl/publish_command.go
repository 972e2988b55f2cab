package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/connorpauley-png/content-command-sub001/internal/bootstrap"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var dryRun, legacy bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Run one publish pass over due queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Queue.DryRun = true
			}
			if legacy {
				cfg.Queue.Mode = "legacy"
			}
			return ctx.withComponents(cmd.Context(), func(c *bootstrap.Components) error {
				summary, err := c.Engine.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(summary))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Replace every platform adapter with a no-op")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Publish approved posts directly instead of draining the queue")
	return cmd
}

func renderRunSummary(s queue.RunSummary) string {
	counts := [][]string{
		{"Mode", s.Mode},
		{"Stale reset", strconv.Itoa(s.StaleReset)},
		{"Selected", strconv.Itoa(s.Selected)},
		{"Completed", strconv.Itoa(s.Completed)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Exhausted", strconv.Itoa(s.Exhausted)},
	}
	out := renderTable([]string{"Run", "Value"}, counts, []columnAlignment{alignLeft, alignRight})

	if len(s.Posts) > 0 {
		ids := make([]string, 0, len(s.Posts))
		for id := range s.Posts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, []string{id, string(s.Posts[id])})
		}
		out += "\n" + renderTable([]string{"Post", "Status"}, rows, nil)
	}

	for _, e := range s.Errors {
		out += "\nerror: " + e
	}
	return out
}
