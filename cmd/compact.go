package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
)

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the vault file to reclaim unused space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.options().Filename

			info, err := os.Stat(path)
			if err != nil {
				return core.ErrNoVault
			}
			sizeBefore := info.Size()

			if err := a.withVault(func(v *core.Vault) error { return v.Compact() }); err != nil {
				return err
			}

			info, err = os.Stat(path)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(info.Size()))
			return nil
		},
	}
}
