package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/remote"
	"github.com/snapbox/snapbox/internal/utils"
)

func init() {
	rootCmd.AddCommand(newImportCmd())
}

func newImportCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <dest>",
		Short: "Materialize the mirror's current state as a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMirror(cmd)
			if err != nil {
				return err
			}

			dest, err := utils.ResolvePath(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(dest)
			}

			svc, err := remote.Import(cmd.Context(), store, dest, name)
			if err != nil {
				return err
			}

			fmt.Printf("imported %s into %s\n", cyan(svc.Project.Name), dest)
			fmt.Printf("snapshot: %s\n", green(svc.Project.LastBackupSnapshotID))
			return nil
		},
	}

	cmd.Flags().StringP("mirror", "m", "", "import from a directory mirror at this path")
	cmd.Flags().StringVarP(&name, "name", "n", "", "project name (default: destination folder name)")
	return cmd
}
