package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/project"
	"github.com/snapbox/snapbox/internal/utils"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var name string
	var kind string
	var launch string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Start tracking a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			resolved, err := utils.ResolvePath(root)
			if err != nil {
				return err
			}

			if existing, err := project.Load(resolved); err == nil {
				fmt.Printf("already tracked as %s\n", cyan(existing.Name))
				return nil
			}

			if name == "" {
				name = filepath.Base(resolved)
			}

			p, err := project.New(resolved, name, project.Kind(kind))
			if err != nil {
				return err
			}
			if launch != "" {
				p.LaunchCommand = launch
				if err := p.Save(); err != nil {
					return err
				}
			}

			fmt.Printf("tracking %s (%s)\n", cyan(p.Name), p.Kind)
			fmt.Printf("path: %s\n", p.Root())
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "project name (default: folder name)")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(project.KindFolder), "project kind (python|folder)")
	cmd.Flags().StringVarP(&launch, "launch", "l", "", "launch command (python projects only)")
	return cmd
}
