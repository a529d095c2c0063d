package storage

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/cryptvault/internal/crypto"
)

const (
	FormatVersion = "1"
	FilePerm      = 0600
	lockTimeout   = time.Second
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // KDF params, key source, timestamps - unencrypted
	KeysBucket    = []byte("keys")    // Wrapped data key and key check
	EntriesBucket = []byte("entries") // Encrypted named secrets
	IndexBucket   = []byte("index")   // Public entry list for ls/status - unencrypted
)

// Config keys
var (
	ConfigVersion   = []byte("version")
	ConfigCreated   = []byte("created")
	ConfigModified  = []byte("modified")
	ConfigSalt      = []byte("salt")
	ConfigIters     = []byte("iterations")
	ConfigKeySource = []byte("key_source")
	ConfigVaultID   = []byte("vault_id")
)

// Keys bucket keys
var (
	KeyDataKey = []byte("data_key")
	KeyCheck   = []byte("check")
)

var (
	ErrNotFound = errors.New("not found")
	// ErrClosed reports that the file could not be reopened after compaction
	ErrClosed = errors.New("vault file closed")
)

// Storage provides BBolt-based storage for a vault file
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a vault file. The file stays locked until Close.
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, FilePerm, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// OpenReadOnly opens an existing vault file without taking a write lock
func OpenReadOnly(path string) (*Storage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := bolt.Open(path, FilePerm, &bolt.Options{Timeout: lockTimeout, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Initialize creates the bucket structure for a new vault
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, KeysBucket, EntriesBucket, IndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
			return err
		}

		now := time.Now()
		created, _ := now.MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		if err := config.Put(ConfigModified, created); err != nil {
			return err
		}

		id, err := crypto.GenerateRandom(16)
		if err != nil {
			return fmt.Errorf("failed to generate vault ID: %w", err)
		}
		return config.Put(ConfigVaultID, []byte(hex.EncodeToString(id)))
	})
}

// getConfig copies a config value out of the read transaction
func (s *Storage) getConfig(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket: %w", ErrNotFound)
		}
		data := config.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		// Make a copy since the slice is only valid during the transaction
		value = append([]byte(nil), data...)
		return nil
	})
	return value, err
}

// Version returns the on-disk format version
func (s *Storage) Version() (string, error) {
	v, err := s.getConfig(ConfigVersion)
	return string(v), err
}

// GetSalt retrieves the KDF salt
func (s *Storage) GetSalt() ([]byte, error) {
	return s.getConfig(ConfigSalt)
}

// GetIterations retrieves the KDF iterations
func (s *Storage) GetIterations() (uint32, error) {
	iters, err := s.getConfig(ConfigIters)
	if err != nil {
		return 0, err
	}
	if len(iters) != 4 {
		return 0, fmt.Errorf("iterations: malformed value")
	}
	return binary.BigEndian.Uint32(iters), nil
}

// GetKeySource returns the recorded key source
func (s *Storage) GetKeySource() (string, error) {
	v, err := s.getConfig(ConfigKeySource)
	return string(v), err
}

// GetVaultID retrieves the vault ID
func (s *Storage) GetVaultID() (string, error) {
	v, err := s.getConfig(ConfigVaultID)
	return string(v), err
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	return s.getTime(ConfigModified)
}

// GetCreated retrieves the creation timestamp
func (s *Storage) GetCreated() (time.Time, error) {
	return s.getTime(ConfigCreated)
}

func (s *Storage) getTime(key []byte) (time.Time, error) {
	var t time.Time
	data, err := s.getConfig(key)
	if err != nil {
		return t, err
	}
	err = t.UnmarshalBinary(data)
	return t, err
}

func (s *Storage) getKey(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket(KeysBucket)
		if keys == nil {
			return fmt.Errorf("keys bucket: %w", ErrNotFound)
		}
		data := keys.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		value = append([]byte(nil), data...)
		return nil
	})
	return value, err
}

// GetWrappedKey retrieves the wrapped data key
func (s *Storage) GetWrappedKey() ([]byte, error) {
	return s.getKey(KeyDataKey)
}

// GetKeyCheck retrieves the encrypted key verification blob
func (s *Storage) GetKeyCheck() ([]byte, error) {
	return s.getKey(KeyCheck)
}

// KeyMaterial is everything needed to recover the data key of a vault
type KeyMaterial struct {
	Source     string
	Salt       []byte // empty for keyfile vaults
	Iterations uint32
	WrappedKey []byte
	KeyCheck   []byte
}

// StoreKeyMaterial writes the key material of a new vault in one transaction
func (s *Storage) StoreKeyMaterial(km KeyMaterial) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		keys := tx.Bucket(KeysBucket)
		if config == nil || keys == nil {
			return fmt.Errorf("vault not initialized: %w", ErrNotFound)
		}
		if err := config.Put(ConfigKeySource, []byte(km.Source)); err != nil {
			return err
		}
		if len(km.Salt) > 0 {
			iters := make([]byte, 4)
			binary.BigEndian.PutUint32(iters, km.Iterations)
			if err := config.Put(ConfigSalt, km.Salt); err != nil {
				return err
			}
			if err := config.Put(ConfigIters, iters); err != nil {
				return err
			}
		}
		if err := keys.Put(KeyCheck, km.KeyCheck); err != nil {
			return err
		}
		return keys.Put(KeyDataKey, km.WrappedKey)
	})
}

// HasKeyMaterial reports whether a wrapped data key has been stored
func (s *Storage) HasKeyMaterial() (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if keys := tx.Bucket(KeysBucket); keys != nil {
			ok = keys.Get(KeyDataKey) != nil
		}
		return nil
	})
	return ok, err
}

// Rekey replaces salt, iterations and wrapped data key in one transaction
func (s *Storage) Rekey(salt []byte, iterations uint32, wrapped []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		iters := make([]byte, 4)
		binary.BigEndian.PutUint32(iters, iterations)
		if err := config.Put(ConfigSalt, salt); err != nil {
			return err
		}
		if err := config.Put(ConfigIters, iters); err != nil {
			return err
		}
		modified, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigModified, modified); err != nil {
			return err
		}
		return tx.Bucket(KeysBucket).Put(KeyDataKey, wrapped)
	})
}

// IndexEntry is the unencrypted listing record of an entry
type IndexEntry struct {
	Name     string    `json:"name"`
	Size     int       `json:"size"`
	Modified time.Time `json:"modified"`
}

// PutEntry stores an encrypted entry and its index record atomically
func (s *Storage) PutEntry(name string, encrypted []byte, size int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		now := time.Now()
		data, err := json.Marshal(IndexEntry{Name: name, Size: size, Modified: now})
		if err != nil {
			return err
		}
		if err := tx.Bucket(EntriesBucket).Put([]byte(name), encrypted); err != nil {
			return err
		}
		if err := tx.Bucket(IndexBucket).Put([]byte(name), data); err != nil {
			return err
		}
		modified, _ := now.MarshalBinary()
		return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
	})
}

// GetEntry retrieves encrypted entry data
func (s *Storage) GetEntry(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(EntriesBucket)
		if entries == nil {
			return fmt.Errorf("entries bucket: %w", ErrNotFound)
		}
		v := entries.Get([]byte(name))
		if v == nil {
			return fmt.Errorf("entry %q: %w", name, ErrNotFound)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// DeleteEntry removes an entry and its index record
func (s *Storage) DeleteEntry(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(EntriesBucket)
		if entries.Get([]byte(name)) == nil {
			return fmt.Errorf("entry %q: %w", name, ErrNotFound)
		}
		if err := entries.Delete([]byte(name)); err != nil {
			return err
		}
		if err := tx.Bucket(IndexBucket).Delete([]byte(name)); err != nil {
			return err
		}
		modified, _ := time.Now().MarshalBinary()
		return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
	})
}

// ListIndex returns all index records sorted by name
func (s *Storage) ListIndex() ([]IndexEntry, error) {
	var list []IndexEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return nil
		}
		return index.ForEach(func(k, v []byte) error {
			var entry IndexEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("index entry %q: %w", k, err)
			}
			list = append(list, entry)
			return nil
		})
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, err
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after deleting entries to reclaim disk space.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, FilePerm, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// From here on the handle is closed and every path must reopen srcPath
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("failed to backup original: %w", err), s.reopen(srcPath))
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("failed to replace database: %w", err), s.reopen(srcPath))
	}
	os.Remove(backupPath)

	return s.reopen(srcPath)
}

// reopen swaps in a fresh handle for path. On failure the closed handle is
// kept, so later calls fail with bolt.ErrDatabaseNotOpen instead of panicking.
func (s *Storage) reopen(path string) error {
	db, err := bolt.Open(path, FilePerm, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return fmt.Errorf("%w: failed to reopen database: %w", ErrClosed, err)
	}
	s.db = db
	return nil
}
