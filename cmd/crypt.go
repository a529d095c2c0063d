package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
)

func newEncryptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [TEXT]",
		Short: "Encrypt TEXT (or stdin) and print the ciphertext",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := argOrInput(args, 0, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return a.withVault(func(v *core.Vault) error {
				ct, err := v.Encrypt(plain)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ct)
				return nil
			})
		},
	}
}

func newDecryptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [CIPHERTEXT]",
		Short: "Decrypt CIPHERTEXT (or stdin) and print the plaintext",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := argOrInput(args, 0, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return a.withVault(func(v *core.Vault) error {
				plain, err := v.Decrypt(strings.TrimSpace(ct))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), plain)
				return nil
			})
		},
	}
}
