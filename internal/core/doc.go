// Package core provides the Vault: a string encryptor backed by a vault file.
//
// Lifecycle:
//   - New: store options, no I/O
//   - CheckCrypt: open the vault file, then load or create the data key
//   - Encrypt/Decrypt: AES-256-GCM under the data key, base64 text form
//   - DestroyVault: wipe the key, close the file (the file is kept)
//
// The data key is random and stored wrapped in the vault file. The wrapping
// key comes from the keyfile when one is configured, otherwise from Secret
// via PBKDF2. Rekey changes the secret without touching existing ciphertext.
//
// Named entries (Put/Get/Delete/List) are stored encrypted in the same file.
package core
