package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/manifest"
	"github.com/snapbox/snapbox/internal/watcher"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project and report save-state changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			if debounce == 0 {
				if cfg, err := loadAppConfig(cmd); err == nil {
					debounce = cfg.WatchDebounce
				}
			}

			monitor := watcher.NewMonitor(svc, debounce)
			done := make(chan error, 1)
			go func() {
				done <- monitor.Run(cmd.Context())
			}()

			fmt.Printf("watching %s (ctrl-c to stop)\n", cyan(svc.Project.Root()))
			for {
				select {
				case status := <-monitor.Changes():
					stamp := time.Now().Format("15:04:05")
					if status == manifest.StatusSaved {
						fmt.Printf("%s %s\n", stamp, green(status))
					} else {
						fmt.Printf("%s %s\n", stamp, yellow(status))
					}
				case err := <-done:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "settle time before re-checking (default from config)")
	return cmd
}
