package core

import "errors"

var (
	// ErrCryptInit means CheckCrypt could not establish or verify the key
	ErrCryptInit = errors.New("crypto initialization failed")
	// ErrNotInitialized means an operation ran before CheckCrypt
	ErrNotInitialized = errors.New("vault not initialized")
	// ErrDecrypt means a ciphertext was malformed, tampered or from another key
	ErrDecrypt = errors.New("decryption failed")
	// ErrDestroyed means the vault was torn down by DestroyVault
	ErrDestroyed = errors.New("vault destroyed")

	ErrWrongKey          = errors.New("wrong secret or keyfile")
	ErrSecretRequired    = errors.New("secret required")
	ErrKeySourceMismatch = errors.New("key source mismatch")
	ErrKeyfileVault      = errors.New("vault is protected by a keyfile")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrInvalidName       = errors.New("invalid entry name")
)
