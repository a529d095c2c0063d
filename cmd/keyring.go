package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
	"github.com/illarion/cryptvault/internal/keyring"
)

func newKeyringCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the vault secret in the OS keyring",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "save",
			Short: "Verify the secret and save it to the OS keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if a.options().Keyfile != "" {
					return core.ErrKeyfileVault
				}
				return a.withVault(func(v *core.Vault) error {
					vaultID, err := v.VaultID()
					if err != nil {
						return err
					}
					if err := keyring.SaveSecret(vaultID, v.Secret); err != nil {
						return fmt.Errorf("failed to save to keyring: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Secret saved to keyring")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the vault secret from the OS keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				opts := a.options()
				status, err := core.Inspect(opts.Filename, opts.Keyfile)
				if err != nil {
					return err
				}
				if err := keyring.DeleteSecret(status.VaultID); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No secret stored in keyring")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Secret removed from keyring")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the vault secret is in the OS keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				opts := a.options()
				status, err := core.Inspect(opts.Filename, opts.Keyfile)
				if err != nil {
					return err
				}
				if keyring.HasSecret(status.VaultID) {
					fmt.Fprintln(cmd.OutOrStdout(), "Secret: stored in keyring")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Secret: not stored")
				}
				return nil
			},
		},
	)

	return cmd
}
