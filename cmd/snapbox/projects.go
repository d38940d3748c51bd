package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/project"
	"github.com/snapbox/snapbox/internal/utils"
)

func init() {
	rootCmd.AddCommand(newProjectsCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newIgnoreCmd())
}

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List tracked projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			active, stale, err := project.Known()
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Println("no tracked projects")
			}
			for _, root := range active {
				if p, err := project.Load(root); err == nil {
					fmt.Printf("%s\t%s\n", cyan(p.Name), root)
				} else {
					fmt.Printf("%s\t%s\n", cyan("?"), root)
				}
			}
			if len(stale) > 0 {
				fmt.Printf("dropped %d stale entr(ies)\n", len(stale))
			}
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [path]",
		Short: "Stop tracking a project (files are kept, snapshots are deleted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("project")
			if len(args) == 1 {
				root = args[0]
			}
			resolved, err := utils.ResolvePath(root)
			if err != nil {
				return err
			}
			if err := project.Remove(resolved); err != nil {
				return err
			}
			fmt.Printf("no longer tracking %s\n", resolved)
			return nil
		},
	}
}

func newIgnoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <pattern>...",
		Short: "Add ignore patterns to the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			if err := svc.ApplyIgnorePatterns(args...); err != nil {
				return err
			}
			fmt.Printf("ignoring: %v\n", args)
			return nil
		},
	}
}
