package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/connorpauley-png/content-command-sub001/internal/bootstrap"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Assign posting slots to approved posts without a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd.Context(), func(c *bootstrap.Components) error {
				resp, err := c.Schedule.Fill(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderScheduleFill(resp))
				return nil
			})
		},
	}
}

func renderScheduleFill(resp transfer.ScheduleFillResponse) string {
	if len(resp.Assigned) == 0 && len(resp.Skipped) == 0 {
		return "No posts waiting for a slot"
	}

	rows := make([][]string, 0, len(resp.Assigned)+len(resp.Skipped))
	for _, a := range resp.Assigned {
		rows = append(rows, []string{a.PostID, a.AccountID, a.At.UTC().Format(time.RFC3339), ""})
	}
	for _, s := range resp.Skipped {
		rows = append(rows, []string{s.PostID, "", "", s.Reason})
	}
	out := renderTable([]string{"Post", "Account", "Slot (UTC)", "Skipped"}, rows, nil)
	return out + "\nEnqueued: " + strconv.Itoa(resp.Enqueued)
}
