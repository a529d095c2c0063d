package keyring

import (
	"github.com/zalando/go-keyring"
)

const serviceName = "vault"

// SaveSecret stores a vault secret in the OS keyring
func SaveSecret(vaultID string, secret string) error {
	return keyring.Set(serviceName, vaultID, secret)
}

// GetSecret retrieves a vault secret from the OS keyring
func GetSecret(vaultID string) (string, error) {
	return keyring.Get(serviceName, vaultID)
}

// DeleteSecret removes a vault secret from the OS keyring
func DeleteSecret(vaultID string) error {
	return keyring.Delete(serviceName, vaultID)
}

// HasSecret checks if a secret is stored in the keyring
func HasSecret(vaultID string) bool {
	_, err := keyring.Get(serviceName, vaultID)
	return err == nil
}
