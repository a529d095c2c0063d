package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/illarion/cryptvault/internal/core"
	"github.com/illarion/cryptvault/internal/keyring"
)

var errAlreadyExists = errors.New("vault already exists")

// PrintError writes a user-facing message for err, with a hint where one helps
func PrintError(w io.Writer, err error) {
	switch {
	case errors.Is(err, core.ErrNoVault):
		fmt.Fprintf(w, "Error: no vault file found\n")
		fmt.Fprintf(w, "Run 'vault init' first\n")
	case errors.Is(err, errAlreadyExists):
		fmt.Fprintf(w, "Error: vault file already exists\n")
		fmt.Fprintf(w, "Use 'vault status' to see current state\n")
	case errors.Is(err, core.ErrWrongKey):
		fmt.Fprintf(w, "Error: wrong secret or keyfile\n")
	case errors.Is(err, core.ErrKeySourceMismatch):
		fmt.Fprintf(w, "Error: %s\n", err)
		fmt.Fprintf(w, "Check the --keyfile option\n")
	case errors.Is(err, core.ErrKeyfileVault):
		fmt.Fprintf(w, "Error: vault is protected by a keyfile, there is no secret to change\n")
	default:
		fmt.Fprintf(w, "Error: %s\n", err)
	}
}

// secretSource says where a secret came from
type secretSource int

const (
	fromEnv secretSource = iota
	fromKeyring
	fromPrompt
)

// resolveSecret returns the vault secret from VAULT_SECRET, the OS keyring
// or a terminal prompt, in that order.
func (a *app) resolveSecret(vaultID string) (string, secretSource, error) {
	if secret := a.cfg.GetString(keySecret); secret != "" {
		return secret, fromEnv, nil
	}

	if vaultID != "" {
		if secret, err := keyring.GetSecret(vaultID); err == nil && secret != "" {
			return secret, fromKeyring, nil
		}
	}

	secret, err := core.ReadSecret("Enter secret: ")
	return secret, fromPrompt, err
}

// withVault opens an existing vault, runs fn and tears the vault down
func (a *app) withVault(fn func(*core.Vault) error) error {
	opts := a.options()

	status, err := core.Inspect(opts.Filename, opts.Keyfile)
	if err != nil {
		return err
	}

	vault := core.New(opts)
	defer vault.DestroyVault()

	if opts.Keyfile == "" {
		secret, source, err := a.resolveSecret(status.VaultID)
		if err != nil {
			return err
		}
		vault.Secret = secret

		err = vault.CheckCrypt()
		if errors.Is(err, core.ErrWrongKey) && source == fromKeyring {
			// Stale keyring entry, ask instead
			if vault.Secret, err = core.ReadSecret("Enter secret: "); err != nil {
				return err
			}
			err = vault.CheckCrypt()
		}
		if err != nil {
			return err
		}
	} else if err := vault.CheckCrypt(); err != nil {
		return err
	}

	return fn(vault)
}

// argOrInput returns args[i] if present, otherwise all of r without one
// trailing newline.
func argOrInput(args []string, i int, r io.Reader) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// formatSize formats a size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
