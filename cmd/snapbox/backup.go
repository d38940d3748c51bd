package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapbox/snapbox/internal/config"
	"github.com/snapbox/snapbox/internal/project"
	"github.com/snapbox/snapbox/internal/remote"
)

func init() {
	rootCmd.AddCommand(newBackupCmd())
}

// openReconciler wires the project to the configured mirror, with --mirror
// overriding the config for ad-hoc directory targets.
func openReconciler(cmd *cobra.Command, svc *project.Service) (*remote.Reconciler, error) {
	store, err := openMirror(cmd)
	if err != nil {
		return nil, err
	}
	return remote.OpenReconciler(svc, store)
}

func openMirror(cmd *cobra.Command) (remote.Store, error) {
	if dir, _ := cmd.Flags().GetString("mirror"); dir != "" {
		return remote.NewDirStore(dir)
	}
	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Mirror == nil {
		return nil, fmt.Errorf("no mirror configured; set one in %s or pass --mirror", config.DefaultPath())
	}
	return cfg.Mirror.Open()
}

func newBackupCmd() *cobra.Command {
	var adopt bool
	var override bool
	var allowSecrets bool
	var ignoreSecrets bool

	cmd := &cobra.Command{
		Use:   "backup [label]",
		Short: "Push the project's saved state to its mirror",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			rec, err := openReconciler(cmd, svc)
			if err != nil {
				return err
			}
			defer rec.Close()

			label := strings.Join(args, " ")

			if adopt {
				snap, err := rec.AdoptRemote(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("adopted remote state as %s\n", green(snap.ID))
				return nil
			}
			push := func() (*remote.BackupResult, error) {
				if override {
					return rec.OverrideRemote(cmd.Context(), label)
				}
				return rec.Backup(cmd.Context(), label)
			}

			result, err := push()
			var diverged *remote.DivergenceError
			if errors.As(err, &diverged) {
				fmt.Printf("%s: the mirror has changes this project never pushed\n", red("diverged"))
				fmt.Printf("  remote head: %s\n", diverged.RemoteRef)
				fmt.Printf("run %s to take the remote state, or %s to replace it\n",
					cyan("snapbox backup --adopt"), cyan("snapbox backup --override"))
				return err
			}
			if err != nil {
				return err
			}

			if result.Outcome == remote.BackupBlockedSecrets {
				fmt.Printf("%s: backup blocked, these files look like secrets:\n", yellow("blocked"))
				printFindings(result.Findings)

				switch {
				case allowSecrets:
					if err := rec.ResolveSecrets(remote.SecretsOverride, result.Findings); err != nil {
						return err
					}
				case ignoreSecrets:
					if err := rec.ResolveSecrets(remote.SecretsIgnore, result.Findings); err != nil {
						return err
					}
					fmt.Println("flagged paths added to ignore patterns")
				default:
					fmt.Printf("rerun with %s to exclude them, or %s to push anyway\n",
						cyan("--ignore-secrets"), cyan("--allow-secrets"))
					return nil
				}

				if result, err = push(); err != nil {
					return err
				}
				if result.Outcome != remote.BackupComplete {
					return fmt.Errorf("backup still blocked after resolving secrets")
				}
			}

			if override {
				fmt.Printf("overrode remote head with %s\n", green(result.SnapshotID))
			} else {
				fmt.Printf("backed up %s\n", green(result.SnapshotID))
			}
			fmt.Printf("remote ref: %s\n", result.Ref)
			return nil
		},
	}

	cmd.Flags().StringP("mirror", "m", "", "backup to a directory mirror at this path")
	cmd.Flags().BoolVar(&adopt, "adopt", false, "replace the local tree with the remote state")
	cmd.Flags().BoolVar(&override, "override", false, "replace the remote state with the local tree")
	cmd.Flags().BoolVar(&allowSecrets, "allow-secrets", false, "push even if the scan finds secret-looking files")
	cmd.Flags().BoolVar(&ignoreSecrets, "ignore-secrets", false, "exclude flagged files and push the rest")
	cmd.MarkFlagsMutuallyExclusive("adopt", "override")
	cmd.MarkFlagsMutuallyExclusive("allow-secrets", "ignore-secrets")
	return cmd
}
