package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/cryptvault/internal/core"
	"github.com/illarion/cryptvault/internal/git"
	"github.com/illarion/cryptvault/internal/keyring"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault file information (no secret required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.options()
			status, err := core.Inspect(opts.Filename, opts.Keyfile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Vault:      %s (format v%s)\n", status.Path, status.Version)
			if info, err := os.Stat(status.Path); err == nil {
				fmt.Fprintf(out, "Size:       %s\n", formatSize(info.Size()))
			}
			fmt.Fprintf(out, "ID:         %s\n", status.VaultID)
			fmt.Fprintf(out, "Created:    %s\n", status.Created.Format(time.RFC3339))
			fmt.Fprintf(out, "Modified:   %s\n", status.Modified.Format(time.RFC3339))
			fmt.Fprintf(out, "Cipher:     %s\n", status.Algorithm)
			switch status.KeySource {
			case core.KeySourceKeyfile:
				fmt.Fprintf(out, "Key:        keyfile\n")
			default:
				fmt.Fprintf(out, "Key:        secret (%s, %d iterations)\n", status.KDF, status.Iterations)
				if keyring.HasSecret(status.VaultID) {
					fmt.Fprintf(out, "Keyring:    secret stored\n")
				}
			}
			fmt.Fprintf(out, "Secrets:    %d\n", len(status.Entries))
			fmt.Fprint(out, git.FormatGitStatus(status.GitStatus))
			return nil
		},
	}
}
