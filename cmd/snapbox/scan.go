package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/secrets"
)

func init() {
	rootCmd.AddCommand(newScanCmd())
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the project for secret-looking files",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}

			findings, err := secrets.Scan(svc.Project.Root(), svc.Project.IgnorePatterns)
			if err != nil {
				return err
			}
			if len(findings) == 0 {
				fmt.Printf("%s: nothing flagged\n", green("clean"))
				return nil
			}

			fmt.Printf("%d file(s) flagged:\n", len(findings))
			printFindings(findings)
			return nil
		},
	}
}

func printFindings(findings []secrets.Finding) {
	for _, f := range findings {
		tier := string(f.Tier)
		switch f.Tier {
		case secrets.TierHigh:
			tier = red(tier)
		case secrets.TierMedium:
			tier = yellow(tier)
		}
		fmt.Printf("  [%s] %s (%s)\n", tier, f.Path, f.Rule)
	}
}
