package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/remote"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the project has unsaved changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}

			tree, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("project: %s\n", cyan(svc.Project.Name))
			if tree == manifest.StatusSaved {
				fmt.Printf("tree:    %s\n", green(tree))
			} else {
				fmt.Printf("tree:    %s\n", yellow(tree))
			}

			cfg, err := loadAppConfig(cmd)
			if err != nil || cfg.Mirror == nil {
				return nil
			}
			store, err := cfg.Mirror.Open()
			if err != nil {
				return err
			}
			rec, err := remote.OpenReconciler(svc, store)
			if err != nil {
				return err
			}
			defer rec.Close()

			backup, err := rec.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("check mirror: %w", err)
			}
			switch backup {
			case remote.StatusSynced:
				fmt.Printf("backup:  %s\n", green(backup))
			case remote.StatusAheadRemote:
				fmt.Printf("backup:  %s\n", red(backup))
			default:
				fmt.Printf("backup:  %s\n", yellow(backup))
			}
			return nil
		},
	}
}
