package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
	"github.com/illarion/cryptvault/internal/crypto"
)

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Store a named secret (VALUE or stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := argOrInput(args, 1, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return a.withVault(func(v *core.Vault) error {
				if err := v.Put(args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored: %s\n", args[0])
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print a named secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *core.Vault) error {
				value, err := v.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove named secrets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVault(func(v *core.Vault) error {
				for _, name := range args {
					if err := v.Delete(name); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", name)
				}
				return nil
			})
		},
	}
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List named secrets (no secret required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.options()
			status, err := core.Inspect(opts.Filename, opts.Keyfile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(status.Entries) == 0 {
				fmt.Fprintf(out, "No secrets in %s\n", opts.Filename)
				return nil
			}

			fmt.Fprintf(out, "Secrets in %s:\n", opts.Filename)
			for _, e := range status.Entries {
				fmt.Fprintf(out, "  %s (%s, %s)\n", e.Name, formatSize(int64(e.Size)), e.Modified.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff NAME FILE",
		Short: "Show differences between a named secret and FILE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			defer crypto.ClearBytes(local)

			return a.withVault(func(v *core.Vault) error {
				diff, err := v.Diff(args[0], local)
				if err != nil {
					return err
				}
				if diff == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "No changes detected")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), diff)
				return nil
			})
		},
	}
}
