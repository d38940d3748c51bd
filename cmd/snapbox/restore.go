package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/snapshot"
)

func init() {
	rootCmd.AddCommand(newRestoreCmd())
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Bring the working tree back to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}

			result, err := svc.Restore(cmd.Context(), args[0])
			if err != nil {
				if result != nil && len(result.FailedPaths) > 0 {
					fmt.Printf("%s: verification failed for:\n", red("ERROR"))
					for _, path := range result.FailedPaths {
						fmt.Printf("  %s\n", path)
					}
				}
				return err
			}

			fmt.Printf("restored %s\n", green(result.TargetID))
			if result.SafetySnapshotID != "" {
				fmt.Printf("unsaved work kept as %s (%q)\n", cyan(result.SafetySnapshotID), snapshot.SafetyLabel)
			}
			return nil
		},
	}
}
