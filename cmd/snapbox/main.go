package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snapbox/snapbox/internal/config"
	"github.com/snapbox/snapbox/internal/project"
	"github.com/snapbox/snapbox/internal/utils"
	"github.com/snapbox/snapbox/internal/version"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "snapbox",
	Short:         "Snapshot versioning and backup for project folders",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ~/.snapbox/config.json)")
	rootCmd.PersistentFlags().StringP("project", "p", ".", "project directory")
}

func main() {
	// local env overrides, same precedence as real env vars
	godotenv.Load(filepath.Join(project.ConfigDir, ".env"))
	viper.SetEnvPrefix("SNAPBOX")
	viper.AutomaticEnv()

	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("ERROR"), err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if viper.GetBool("debug") || os.Getenv("SNAPBOX_DEBUG") != "" {
		level = slog.LevelDebug
	}

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logFile := filepath.Join(project.ConfigDir, "logs", "snapbox.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
			slog.SetDefault(slog.New(utils.NewMultiLogHandler(stderrHandler, fileHandler)))
			return
		}
	}
	slog.SetDefault(slog.New(stderrHandler))
}

func loadAppConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func openService(cmd *cobra.Command) (*project.Service, error) {
	root, _ := cmd.Flags().GetString("project")
	p, err := project.Load(root)
	if err != nil {
		return nil, err
	}
	return project.NewService(p)
}
