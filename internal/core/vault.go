package core

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/illarion/cryptvault/internal/crypto"
	"github.com/illarion/cryptvault/internal/storage"
)

const (
	DefaultFilename = ".vault"
	FilePermSecure  = 0600 // File: owner rw only

	// MaxIterations bounds Options.Iterations; the count is stored as uint32.
	MaxIterations = 1<<31 - 1
)

// Options configures a Vault. It is copied on construction.
type Options struct {
	Filename string // vault file path
	Keyfile  string // external key path; empty means the key is protected by Secret
	Verbose  bool   // diagnostic logging

	// Logger overrides the logger derived from Verbose.
	Logger *zap.Logger
	// Iterations is the PBKDF2 cost used when a vault file is created.
	// Zero means crypto.DefaultIters. Larger values are clamped to MaxIterations.
	Iterations int
}

// State is the lifecycle state of a Vault
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Vault encrypts and decrypts strings under a key kept in a vault file.
//
// A Vault is not safe for concurrent use. It exclusively owns its key
// material and the vault file handle from CheckCrypt until DestroyVault.
type Vault struct {
	// Secret protects the data key when no keyfile is configured.
	// It must be set before CheckCrypt.
	Secret string

	opts    Options
	log     *zap.Logger
	state   State
	res     *resources
	cleanup runtime.Cleanup
}

// resources are released by DestroyVault, or by the runtime if the
// Vault is dropped without being destroyed.
type resources struct {
	db  *storage.Storage
	enc *crypto.Encryptor
}

func (r *resources) release() error {
	if r.enc != nil {
		r.enc.Destroy()
		r.enc = nil
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// New creates a Vault. No key material is established and no file is touched.
func New(opts Options) *Vault {
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.Iterations <= 0 {
		opts.Iterations = crypto.DefaultIters
	}
	if opts.Iterations > MaxIterations {
		opts.Iterations = MaxIterations
	}

	log := opts.Logger
	if log == nil {
		log = newLogger(opts.Verbose)
	}

	return &Vault{
		opts: opts,
		log:  log.With(zap.String("vault", opts.Filename)),
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// Options returns the configuration the vault was built with
func (v *Vault) Options() Options {
	return v.opts
}

// State returns the current lifecycle state
func (v *Vault) State() State {
	return v.state
}

// CheckCrypt ensures a usable key exists, loading it from the vault file
// or generating and persisting a new one. Calling it again once the vault
// is ready does nothing.
func (v *Vault) CheckCrypt() error {
	switch v.state {
	case StateReady:
		return nil
	case StateDestroyed:
		return ErrDestroyed
	}

	_, statErr := os.Stat(v.opts.Filename)
	created := errors.Is(statErr, os.ErrNotExist)

	db, err := storage.Open(v.opts.Filename)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCryptInit, err)
	}

	enc, err := v.establishKey(db)
	if err != nil {
		db.Close()
		if created {
			// No key material was committed, so the file holds nothing
			os.Remove(v.opts.Filename)
		}
		v.log.Debug("key establishment failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCryptInit, err)
	}

	v.res = &resources{db: db, enc: enc}
	v.cleanup = runtime.AddCleanup(v, func(r *resources) { _ = r.release() }, v.res)
	v.state = StateReady
	return nil
}

// DestroyVault wipes the key and closes the vault file. The file itself is
// kept. Subsequent crypto operations fail with ErrDestroyed.
func (v *Vault) DestroyVault() error {
	if v.state == StateDestroyed {
		return nil
	}
	v.state = StateDestroyed

	if v.res == nil {
		return nil
	}
	v.cleanup.Stop()
	err := v.res.release()
	v.res = nil

	v.log.Debug("vault destroyed")
	_ = v.log.Sync()
	if err != nil {
		return fmt.Errorf("failed to close vault file: %w", err)
	}
	return nil
}

// ready returns the live resources or the lifecycle error
func (v *Vault) ready() (*resources, error) {
	switch v.state {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateDestroyed:
		return nil, ErrDestroyed
	}
	return v.res, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under the vault key and
// returns it base64 encoded. Each call uses a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	res, err := v.ready()
	if err != nil {
		return "", err
	}

	ct, err := res.enc.Encrypt([]byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	v.log.Debug("encrypt", zap.Int("bytes", len(plaintext)))

	return crypto.EncodeString(ct), nil
}

// Decrypt reverses Encrypt. Malformed, tampered or foreign ciphertext
// fails with ErrDecrypt.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	res, err := v.ready()
	if err != nil {
		return "", err
	}

	raw, err := crypto.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}

	plain, err := res.enc.Decrypt(raw)
	if err != nil {
		if errors.Is(err, crypto.ErrKeyDestroyed) {
			return "", ErrDestroyed
		}
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	v.log.Debug("decrypt", zap.Int("bytes", len(plain)))

	return string(plain), nil
}
