package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}

			snaps, err := svc.Store().List()
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println("no snapshots yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tFILES\tSIZE\tLABEL")
			for _, snap := range snaps {
				marker := ""
				switch snap.ID {
				case svc.Project.CurrentSnapshotID:
					marker = " *"
				case svc.Project.LastBackupSnapshotID:
					marker = " ^"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%d\t%s\t%s\n",
					snap.ID, marker,
					humanize.Time(snap.CreatedAt),
					snap.FileCount,
					humanize.Bytes(uint64(snap.TotalBytes)),
					snap.Label,
				)
			}
			return w.Flush()
		},
	}
}
