package core

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/illarion/cryptvault/internal/crypto"
	"github.com/illarion/cryptvault/internal/storage"
)

const MaxNameLength = 255

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return fmt.Errorf("%w: control characters", ErrInvalidName)
	}
	return nil
}

// Put encrypts value and stores it under name, replacing any previous value
func (v *Vault) Put(name, value string) error {
	res, err := v.ready()
	if err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	encrypted, err := res.enc.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", name, err)
	}
	if err := res.db.PutEntry(name, encrypted, len(value)); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	v.log.Debug("stored entry", zap.String("name", name))
	return nil
}

// Get returns the decrypted value stored under name
func (v *Vault) Get(name string) (string, error) {
	res, err := v.ready()
	if err != nil {
		return "", err
	}

	encrypted, err := res.db.GetEntry(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrEntryNotFound, name)
		}
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}

	plain, err := res.enc.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: entry %s: %w", ErrDecrypt, name, err)
	}
	defer crypto.ClearBytes(plain)

	return string(plain), nil
}

// Delete removes the entry stored under name
func (v *Vault) Delete(name string) error {
	res, err := v.ready()
	if err != nil {
		return err
	}

	if err := res.db.DeleteEntry(name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	v.log.Debug("deleted entry", zap.String("name", name))
	return nil
}

// List returns the stored entries sorted by name
func (v *Vault) List() ([]storage.IndexEntry, error) {
	res, err := v.ready()
	if err != nil {
		return nil, err
	}
	return res.db.ListIndex()
}

// Diff returns a unified diff from the stored value of name to candidate,
// or an empty string when they are equal.
func (v *Vault) Diff(name string, candidate []byte) (string, error) {
	stored, err := v.Get(name)
	if err != nil {
		return "", err
	}
	return GenerateUnifiedDiff(name, []byte(stored), candidate)
}

// Compact rewrites the vault file to reclaim space left by deleted entries.
// If the file cannot be reopened afterwards the vault is destroyed.
func (v *Vault) Compact() error {
	res, err := v.ready()
	if err != nil {
		return err
	}
	if err := res.db.Compact(); err != nil {
		if errors.Is(err, storage.ErrClosed) {
			v.log.Warn("vault file lost during compaction", zap.Error(err))
			_ = v.DestroyVault()
		}
		return fmt.Errorf("failed to compact vault: %w", err)
	}
	return nil
}

// VaultID returns the random identifier of the vault file
func (v *Vault) VaultID() (string, error) {
	res, err := v.ready()
	if err != nil {
		return "", err
	}
	return res.db.GetVaultID()
}
