package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a vault file and its key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.options()

			if _, err := core.Inspect(opts.Filename, opts.Keyfile); err == nil {
				return errAlreadyExists
			} else if !errors.Is(err, core.ErrNoVault) {
				return err
			}

			vault := core.New(opts)
			defer vault.DestroyVault()

			if opts.Keyfile == "" {
				secret := a.cfg.GetString(keySecret)
				if secret == "" {
					var err error
					if secret, err = core.ReadSecretConfirm(); err != nil {
						return err
					}
				}
				vault.Secret = secret
			}

			if err := vault.CheckCrypt(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Initialized %s\n", opts.Filename)
			if opts.Keyfile != "" {
				fmt.Fprintf(out, "  key: %s (keep it out of version control)\n", opts.Keyfile)
			}
			return nil
		},
	}
}
