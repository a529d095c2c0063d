package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
	"github.com/illarion/cryptvault/internal/keyring"
)

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the vault secret",
		Long:  "Re-wrap the vault key under a new secret. Existing ciphertexts stay valid.\nThe new secret is read from VAULT_NEW_SECRET or prompted for.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.options().Keyfile != "" {
				return core.ErrKeyfileVault
			}

			return a.withVault(func(v *core.Vault) error {
				newSecret := a.cfg.GetString(keyNewSecret)
				if newSecret == "" {
					var err error
					if newSecret, err = core.ReadSecretConfirm(); err != nil {
						return err
					}
				}

				if err := v.Rekey(newSecret); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				vaultID, err := v.VaultID()
				if err == nil && keyring.HasSecret(vaultID) {
					if err := keyring.SaveSecret(vaultID, newSecret); err == nil {
						fmt.Fprintln(out, "Keyring updated with new secret")
					}
				}

				fmt.Fprintln(out, "secret changed successfully")
				return nil
			})
		},
	}
}
