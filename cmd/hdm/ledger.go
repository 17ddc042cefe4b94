package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/hdm/pkg/ledger"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the state ledger",
	}
	cmd.AddCommand(newZombiesCmd())
	return cmd
}

func newZombiesCmd() *cobra.Command {
	var f commonFlags
	cmd := &cobra.Command{
		Use:   "zombies [manifest]",
		Short: "List ledger rows of a manifest still in progress",
		Long: `A row stays in_progress when a run died between the pre and post
entries of a step. Zombies lists those rows so the affected units can be
checked before the next run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.initLogger(); err != nil {
				return err
			}
			settings, profiles, m, err := loadRun(cmd, args)
			if err != nil {
				return err
			}

			store, err := ledger.OpenStore(cmd.Context(), m.StateManager, profiles, settings)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.ListByStatus(cmd.Context(), settings.ManifestName(), ledger.StatusInProgress)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "no rows in progress")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATE ID\tJOB ID\tACTION\tSOURCE\tENTITY\tSINK\tUPDATED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StateID, r.JobID, r.Action, r.SourceName, r.SourceEntity, r.SinkName,
					r.UpdatedOn.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	f.register(cmd)
	return cmd
}
