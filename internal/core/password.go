package core

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/illarion/cryptvault/internal/crypto"
)

// SecretEnv names the environment variable the CLI reads the secret from
const SecretEnv = "VAULT_SECRET"

// ReadSecret reads a secret from the terminal without echoing
func ReadSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	defer crypto.ClearBytes(secret)

	return string(secret), nil
}

// ReadSecretConfirm reads a secret twice and ensures they match
func ReadSecretConfirm() (string, error) {
	secret1, err := ReadSecret("Enter secret: ")
	if err != nil {
		return "", err
	}

	secret2, err := ReadSecret("Confirm secret: ")
	if err != nil {
		return "", err
	}

	if !crypto.ConstantTimeCompare([]byte(secret1), []byte(secret2)) {
		return "", fmt.Errorf("secrets do not match")
	}
	if secret1 == "" {
		return "", ErrSecretRequired
	}

	return secret1, nil
}
