// Package storage provides the BBolt database interface for vault files.
//
// Database structure uses four buckets:
//   - config: KDF parameters (salt, iterations), key source, vault ID, timestamps (unencrypted)
//   - keys: the data key wrapped by the key-encryption key, plus a key check blob
//   - entries: named secrets encrypted under the data key
//   - index: entry names, sizes, modification times (unencrypted, for ls/status)
//
// BBolt provides ACID transactions, file locking, and corruption detection.
// A vault file opened with Open stays locked until Close.
package storage
