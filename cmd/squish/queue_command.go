package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"squish/internal/items"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage stored work items",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show item counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *items.SQLiteStore) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if health.Total == 0 {
					fmt.Fprintln(out, "Store is empty")
					return nil
				}
				rows := [][]string{
					{statusLabel(string(items.StatusPending)), strconv.Itoa(health.Pending)},
					{statusLabel(string(items.StatusProcessing)), strconv.Itoa(health.Processing)},
					{statusLabel(string(items.StatusCompleted)), strconv.Itoa(health.Completed)},
					{statusLabel(string(items.StatusError)), strconv.Itoa(health.Errored)},
					{"Total", strconv.Itoa(health.Total)},
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))

				batch, err := store.LastBatch(cmd.Context())
				if err != nil {
					return err
				}
				if batch != nil {
					if batch.EndedAt != nil {
						fmt.Fprintf(out, "Last batch: %d items, finished %s\n",
							batch.ItemCount, humanize.Time(*batch.EndedAt))
					} else {
						fmt.Fprintf(out, "Last batch: %d items, started %s (still open)\n",
							batch.ItemCount, humanize.Time(batch.StartedAt))
					}
				}
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *items.SQLiteStore) error {
				all, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(all) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Store is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Status", "Progress", "Lossless", "Size", "Note"},
					buildQueueListRows(all),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func buildQueueListRows(all []*items.WorkItem) [][]string {
	rows := make([][]string, 0, len(all))
	for _, item := range all {
		size := ""
		if item.ResultBytes() > 0 {
			size = humanize.Bytes(uint64(item.ResultBytes()))
		}
		note := item.ErrorKind
		if note == "" && item.TargetSize.Warning != "" {
			note = item.TargetSize.Warning
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Name,
			statusLabel(string(item.Status)),
			fmt.Sprintf("%d%%", item.Progress),
			yesNo(item.Lossless),
			size,
			note,
		})
	}
	return rows
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset errored items to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *items.SQLiteStore) error {
				count, err := store.ResetErrored(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d errored item(s) to pending\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all stored work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *items.SQLiteStore) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Store cleared")
				return nil
			})
		},
	}
}
