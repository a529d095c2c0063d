// Package crypto provides the cryptographic primitives behind the vault.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key held in memguard locked memory
//   - 12-byte random nonce per encryption operation
//   - Authenticated encryption prevents tampering
//
// Encrypting the same plaintext twice yields different ciphertexts.
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salt (stored unencrypted)
//   - 210,000 iterations (OWASP minimum recommendation)
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
