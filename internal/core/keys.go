package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/illarion/cryptvault/internal/crypto"
	"github.com/illarion/cryptvault/internal/storage"
)

const (
	KeySourceSecret  = "secret"
	KeySourceKeyfile = "keyfile"

	keyCheckString = "cryptvault-key-check"
)

// keySource reports which key source the options select
func (v *Vault) keySource() string {
	if v.opts.Keyfile != "" {
		return KeySourceKeyfile
	}
	return KeySourceSecret
}

// establishKey returns the data key encryptor for db, creating the key
// material when the vault file is new.
func (v *Vault) establishKey(db *storage.Storage) (*crypto.Encryptor, error) {
	has, err := db.HasKeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault file: %w", err)
	}
	if !has {
		return v.createKey(db)
	}
	return v.loadKey(db)
}

// createKey generates a data key, wraps it under the key-encryption key
// and stores it together with a key check.
func (v *Vault) createKey(db *storage.Storage) (*crypto.Encryptor, error) {
	source := v.keySource()
	km := storage.KeyMaterial{Source: source}

	var kek *crypto.Encryptor
	var generated bool
	var err error
	switch source {
	case KeySourceKeyfile:
		kek, generated, err = v.keyfileKEK(true)
	default:
		var kdf *crypto.KDF
		kdf, err = crypto.NewKDF()
		if err != nil {
			return nil, fmt.Errorf("failed to create KDF: %w", err)
		}
		kdf.Iterations = v.opts.Iterations
		km.Salt = kdf.Salt
		km.Iterations = uint32(kdf.Iterations)
		kek, err = v.secretKEK(kdf)
	}
	if err != nil {
		return nil, err
	}
	defer kek.Destroy()

	// A keyfile generated for a vault that never got stored is discarded
	stored := false
	if generated {
		defer func() {
			if !stored {
				os.Remove(v.opts.Keyfile)
			}
		}()
	}

	dekBytes, err := crypto.GenerateRandom(crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	dek, err := crypto.NewEncryptor(dekBytes)
	if err != nil {
		return nil, err
	}

	km.WrappedKey, err = kek.WrapKey(dek)
	if err != nil {
		dek.Destroy()
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}
	km.KeyCheck, err = dek.Encrypt(keyCheckValue())
	if err != nil {
		dek.Destroy()
		return nil, fmt.Errorf("failed to encrypt key check: %w", err)
	}

	if err := db.Initialize(); err != nil {
		dek.Destroy()
		return nil, fmt.Errorf("failed to initialize vault file: %w", err)
	}
	if err := db.StoreKeyMaterial(km); err != nil {
		dek.Destroy()
		return nil, fmt.Errorf("failed to store key material: %w", err)
	}
	stored = true

	v.log.Info("created vault", zap.String("key_source", source))
	return dek, nil
}

// loadKey unwraps and verifies the data key of an existing vault file
func (v *Vault) loadKey(db *storage.Storage) (*crypto.Encryptor, error) {
	stored, err := db.GetKeySource()
	if err != nil {
		return nil, fmt.Errorf("failed to read key source: %w", err)
	}
	if want := v.keySource(); stored != want {
		return nil, fmt.Errorf("%w: vault uses %s, configured for %s", ErrKeySourceMismatch, stored, want)
	}

	var kek *crypto.Encryptor
	switch stored {
	case KeySourceKeyfile:
		kek, _, err = v.keyfileKEK(false)
	case KeySourceSecret:
		kdf, kerr := storedKDF(db)
		if kerr != nil {
			return nil, kerr
		}
		kek, err = v.secretKEK(kdf)
	default:
		return nil, fmt.Errorf("unknown key source %q", stored)
	}
	if err != nil {
		return nil, err
	}
	defer kek.Destroy()

	wrapped, err := db.GetWrappedKey()
	if err != nil {
		return nil, fmt.Errorf("failed to read data key: %w", err)
	}
	dek, err := kek.UnwrapKey(wrapped)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, ErrWrongKey
		}
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}

	if err := verifyKeyCheck(db, dek); err != nil {
		dek.Destroy()
		return nil, err
	}

	v.log.Info("loaded vault key", zap.String("key_source", stored))
	return dek, nil
}

func storedKDF(db *storage.Storage) (*crypto.KDF, error) {
	salt, err := db.GetSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to get salt: %w", err)
	}
	iterations, err := db.GetIterations()
	if err != nil {
		return nil, fmt.Errorf("failed to get iterations: %w", err)
	}
	return &crypto.KDF{Salt: salt, Iterations: int(iterations)}, nil
}

// secretKEK derives the key-encryption key from Secret
func (v *Vault) secretKEK(kdf *crypto.KDF) (*crypto.Encryptor, error) {
	if v.Secret == "" {
		return nil, ErrSecretRequired
	}
	return crypto.NewEncryptor(kdf.DeriveKey([]byte(v.Secret)))
}

// keyfileKEK reads the keyfile, generating it first when create is set
// and the file does not exist yet. generated reports whether it did so.
func (v *Vault) keyfileKEK(create bool) (kek *crypto.Encryptor, generated bool, err error) {
	path := v.opts.Keyfile

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && create {
		data, err = v.writeKeyfile(path)
		generated = err == nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read keyfile: %w", err)
	}
	defer crypto.ClearBytes(data)

	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(key) != crypto.KeySize {
		crypto.ClearBytes(key)
		return nil, false, fmt.Errorf("malformed keyfile %s: want %d hex-encoded bytes", path, crypto.KeySize)
	}
	kek, err = crypto.NewEncryptor(key)
	if err != nil {
		return nil, false, err
	}
	return kek, generated, nil
}

// writeKeyfile creates a new random keyfile and returns its contents
func (v *Vault) writeKeyfile(path string) ([]byte, error) {
	key, err := crypto.GenerateRandom(crypto.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(key)

	data := []byte(hex.EncodeToString(key) + "\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FilePermSecure)
	if err != nil {
		crypto.ClearBytes(data)
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		crypto.ClearBytes(data)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		crypto.ClearBytes(data)
		return nil, err
	}

	v.log.Info("generated keyfile", zap.String("keyfile", path))
	return data, nil
}

func keyCheckValue() []byte {
	checksum := sha256.Sum256([]byte(keyCheckString))
	return []byte(hex.EncodeToString(checksum[:]))
}

func verifyKeyCheck(db *storage.Storage, dek *crypto.Encryptor) error {
	encCheck, err := db.GetKeyCheck()
	if err != nil {
		return fmt.Errorf("failed to read key check: %w", err)
	}
	check, err := dek.Decrypt(encCheck)
	if err != nil {
		return ErrWrongKey
	}
	if !crypto.ConstantTimeCompare(check, keyCheckValue()) {
		return ErrWrongKey
	}
	return nil
}

// Rekey re-wraps the data key under a key derived from newSecret with a
// fresh salt. Existing ciphertexts stay valid. Keyfile vaults are rejected.
func (v *Vault) Rekey(newSecret string) error {
	res, err := v.ready()
	if err != nil {
		return err
	}

	source, err := res.db.GetKeySource()
	if err != nil {
		return fmt.Errorf("failed to read key source: %w", err)
	}
	if source != KeySourceSecret {
		return ErrKeyfileVault
	}
	if newSecret == "" {
		return ErrSecretRequired
	}

	kdf, err := crypto.NewKDF()
	if err != nil {
		return fmt.Errorf("failed to create KDF: %w", err)
	}
	kdf.Iterations = v.opts.Iterations

	kek, err := crypto.NewEncryptor(kdf.DeriveKey([]byte(newSecret)))
	if err != nil {
		return err
	}
	defer kek.Destroy()

	wrapped, err := kek.WrapKey(res.enc)
	if err != nil {
		return fmt.Errorf("failed to wrap data key: %w", err)
	}
	if err := res.db.Rekey(kdf.Salt, uint32(kdf.Iterations), wrapped); err != nil {
		return fmt.Errorf("failed to store data key: %w", err)
	}

	v.Secret = newSecret
	v.log.Info("vault rekeyed")
	return nil
}
