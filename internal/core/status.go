package core

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/illarion/cryptvault/internal/git"
	"github.com/illarion/cryptvault/internal/storage"
)

var ErrNoVault = errors.New("vault file not found")

const (
	Algorithm = "AES-256-GCM"
	KDFName   = "PBKDF2-HMAC-SHA256"
)

// StatusInfo describes a vault file without exposing key material
type StatusInfo struct {
	Path       string
	Version    string
	VaultID    string
	Created    time.Time
	Modified   time.Time
	KeySource  string
	Algorithm  string
	KDF        string
	Iterations uint32
	Entries    []storage.IndexEntry
	GitStatus  *git.GitStatus
}

// Inspect reads the unencrypted metadata of the vault file at filename.
// It needs neither the secret nor the keyfile, and must not be called on a
// file held open by a ready Vault; use Vault.Status for that.
func Inspect(filename, keyfile string) (*StatusInfo, error) {
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoVault
		}
		return nil, fmt.Errorf("failed to stat vault file: %w", err)
	}

	db, err := storage.OpenReadOnly(filename)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return statusOf(db, filename, keyfile)
}

// Status describes the vault file held by a ready Vault
func (v *Vault) Status() (*StatusInfo, error) {
	res, err := v.ready()
	if err != nil {
		return nil, err
	}
	return statusOf(res.db, v.opts.Filename, v.opts.Keyfile)
}

func statusOf(db *storage.Storage, filename, keyfile string) (*StatusInfo, error) {
	has, err := db.HasKeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault file: %w", err)
	}
	if !has {
		return nil, ErrNoVault
	}

	info := &StatusInfo{
		Path:      filename,
		Algorithm: Algorithm,
	}

	if info.Version, err = db.Version(); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if info.VaultID, err = db.GetVaultID(); err != nil {
		return nil, fmt.Errorf("failed to read vault ID: %w", err)
	}
	if info.Created, err = db.GetCreated(); err != nil {
		return nil, fmt.Errorf("failed to read creation time: %w", err)
	}
	if info.Modified, err = db.GetModified(); err != nil {
		return nil, fmt.Errorf("failed to read modification time: %w", err)
	}
	if info.KeySource, err = db.GetKeySource(); err != nil {
		return nil, fmt.Errorf("failed to read key source: %w", err)
	}
	if info.KeySource == KeySourceSecret {
		info.KDF = KDFName
		if info.Iterations, err = db.GetIterations(); err != nil {
			return nil, fmt.Errorf("failed to read iterations: %w", err)
		}
	}
	if info.Entries, err = db.ListIndex(); err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	// Git checks are advisory
	info.GitStatus, _ = git.CheckGitIntegration(filename, keyfile)

	return info, nil
}
