package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSaveCmd())
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [label]",
		Short: "Snapshot the current state of the project",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}

			label := strings.Join(args, " ")
			result, err := svc.Save(cmd.Context(), label)
			if err != nil {
				return err
			}

			snap := result.Snapshot
			fmt.Printf("saved %s\n", green(snap.ID))
			if snap.Label != "" {
				fmt.Printf("label: %s\n", snap.Label)
			}
			fmt.Printf("%d files, %s\n", snap.FileCount, humanize.Bytes(uint64(snap.TotalBytes)))
			if len(result.Evicted) > 0 {
				fmt.Printf("evicted %d old snapshot(s)\n", len(result.Evicted))
			}
			return nil
		},
	}
}
