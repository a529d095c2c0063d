package core

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cryptvault/internal/storage"
)

const testIterations = 1000

func testOptions(dir string) Options {
	return Options{
		Filename:   filepath.Join(dir, ".testvault"),
		Iterations: testIterations,
	}
}

func openTestVault(t *testing.T, opts Options, secret string) *Vault {
	t.Helper()
	v := New(opts)
	v.Secret = secret
	require.NoError(t, v.CheckCrypt())
	t.Cleanup(func() { _ = v.DestroyVault() })
	return v
}

func TestEncryptHelloWorld(t *testing.T) {
	v := New(Options{
		Filename: filepath.Join(t.TempDir(), ".testvault"),
		Keyfile:  "",
		Verbose:  true,
	})
	defer v.DestroyVault()

	v.Secret = "secret"
	require.NoError(t, v.CheckCrypt())

	for x := 0; x < 10; x++ {
		plain := fmt.Sprintf("hello world%d", x)
		ct, err := v.Encrypt(plain)
		require.NoError(t, err)

		got, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestRoundTripEdgeCases(t *testing.T) {
	v := openTestVault(t, testOptions(t.TempDir()), "secret")

	for _, plain := range []string{"", " ", "ünïcödé ✓ 日本語", "line1\nline2\x00", strings.Repeat("x", 1<<16)} {
		ct, err := v.Encrypt(plain)
		require.NoError(t, err)

		got, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	v := openTestVault(t, testOptions(t.TempDir()), "secret")

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, ct := range []string{a, b} {
		got, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, "same", got)
	}
}

func TestEncryptDoesNotMutateSecret(t *testing.T) {
	v := openTestVault(t, testOptions(t.TempDir()), "secret")

	_, err := v.Encrypt("other")
	require.NoError(t, err)
	assert.Equal(t, "secret", v.Secret)
}

func TestOperationsBeforeCheckCrypt(t *testing.T) {
	v := New(testOptions(t.TempDir()))
	assert.Equal(t, StateUninitialized, v.State())

	_, err := v.Encrypt("x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = v.Decrypt("x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, v.Put("a", "b"), ErrNotInitialized)

	_, err = os.Stat(v.Options().Filename)
	assert.True(t, os.IsNotExist(err), "New must not touch the vault file")
}

func TestDestroyVault(t *testing.T) {
	v := New(testOptions(t.TempDir()))
	v.Secret = "secret"
	require.NoError(t, v.CheckCrypt())

	ct, err := v.Encrypt("payload")
	require.NoError(t, err)

	require.NoError(t, v.DestroyVault())
	require.NoError(t, v.DestroyVault())
	assert.Equal(t, StateDestroyed, v.State())

	_, err = v.Encrypt("payload")
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = v.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.ErrorIs(t, v.CheckCrypt(), ErrDestroyed)

	// The file handle is released, so another vault can open the file
	other := openTestVault(t, testOptions(filepath.Dir(v.Options().Filename)), "secret")
	got, err := other.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestDestroyWithoutCheckCrypt(t *testing.T) {
	v := New(testOptions(t.TempDir()))
	require.NoError(t, v.DestroyVault())

	_, err := v.Encrypt("x")
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestCheckCryptIsIdempotent(t *testing.T) {
	v := openTestVault(t, testOptions(t.TempDir()), "secret")

	ct, err := v.Encrypt("payload")
	require.NoError(t, err)

	require.NoError(t, v.CheckCrypt())
	assert.Equal(t, StateReady, v.State())

	got, err := v.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	opts := testOptions(t.TempDir())

	first := New(opts)
	first.Secret = "secret"
	require.NoError(t, first.CheckCrypt())
	ct, err := first.Encrypt("persisted")
	require.NoError(t, err)
	require.NoError(t, first.DestroyVault())

	second := openTestVault(t, opts, "secret")
	got, err := second.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestWrongSecret(t *testing.T) {
	opts := testOptions(t.TempDir())

	first := New(opts)
	first.Secret = "secret"
	require.NoError(t, first.CheckCrypt())
	require.NoError(t, first.DestroyVault())

	v := New(opts)
	v.Secret = "wrong"
	err := v.CheckCrypt()
	assert.ErrorIs(t, err, ErrCryptInit)
	assert.ErrorIs(t, err, ErrWrongKey)
	assert.Equal(t, StateUninitialized, v.State())

	// A failed attempt releases the file and can be retried
	v.Secret = "secret"
	require.NoError(t, v.CheckCrypt())
	require.NoError(t, v.DestroyVault())
}

func TestSecretRequired(t *testing.T) {
	v := New(testOptions(t.TempDir()))
	err := v.CheckCrypt()
	assert.ErrorIs(t, err, ErrCryptInit)
	assert.ErrorIs(t, err, ErrSecretRequired)

	// The failed attempt does not leave an empty vault file behind
	_, err = os.Stat(v.Options().Filename)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDroppedVaultReleasesFile(t *testing.T) {
	opts := testOptions(t.TempDir())

	func() {
		v := New(opts)
		v.Secret = "secret"
		require.NoError(t, v.CheckCrypt())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		other := New(opts)
		other.Secret = "secret"
		if err := other.CheckCrypt(); err != nil {
			return false
		}
		return other.DestroyVault() == nil
	}, 15*time.Second, 50*time.Millisecond)
}

func TestIterationsClamped(t *testing.T) {
	v := New(Options{Iterations: math.MaxInt})
	assert.Equal(t, MaxIterations, v.Options().Iterations)

	v = New(Options{})
	assert.Greater(t, v.Options().Iterations, 0)
}

func TestGeneratedKeyfileRemovedWhenStoreFails(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.Keyfile = filepath.Join(dir, "vault.key")

	db, err := storage.Open(opts.Filename)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	v := New(opts)
	_, err = v.createKey(db)
	require.Error(t, err)

	_, err = os.Stat(opts.Keyfile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCorruptVaultFile(t *testing.T) {
	opts := testOptions(t.TempDir())
	require.NoError(t, os.WriteFile(opts.Filename, []byte(strings.Repeat("garbage", 1000)), 0600))

	v := New(opts)
	v.Secret = "secret"
	assert.ErrorIs(t, v.CheckCrypt(), ErrCryptInit)
}

func TestVaultFileIsLockedWhileReady(t *testing.T) {
	opts := testOptions(t.TempDir())
	openTestVault(t, opts, "secret")

	other := New(opts)
	other.Secret = "secret"
	assert.ErrorIs(t, other.CheckCrypt(), ErrCryptInit)
}

func TestKeyfileGeneratedAndReused(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.Keyfile = filepath.Join(dir, "vault.key")

	first := New(opts)
	require.NoError(t, first.CheckCrypt())
	ct, err := first.Encrypt("keyed")
	require.NoError(t, err)
	require.NoError(t, first.DestroyVault())

	info, err := os.Stat(opts.Keyfile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermSecure), info.Mode().Perm())

	data, err := os.ReadFile(opts.Keyfile)
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(string(data)), 64)

	second := openTestVault(t, opts, "")
	got, err := second.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "keyed", got)
}

func TestKeyfileProblems(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	opts.Keyfile = filepath.Join(dir, "vault.key")

	v := New(opts)
	require.NoError(t, v.CheckCrypt())
	require.NoError(t, v.DestroyVault())

	t.Run("missing keyfile on reload", func(t *testing.T) {
		moved := opts.Keyfile + ".moved"
		require.NoError(t, os.Rename(opts.Keyfile, moved))
		defer os.Rename(moved, opts.Keyfile)

		v := New(opts)
		assert.ErrorIs(t, v.CheckCrypt(), ErrCryptInit)
		_, err := os.Stat(opts.Keyfile)
		assert.True(t, os.IsNotExist(err), "reload must not generate a new keyfile")
	})

	t.Run("foreign keyfile", func(t *testing.T) {
		foreign := testOptions(t.TempDir())
		foreign.Keyfile = filepath.Join(t.TempDir(), "other.key")
		openTestVault(t, foreign, "")

		mixed := opts
		mixed.Keyfile = foreign.Keyfile
		v := New(mixed)
		err := v.CheckCrypt()
		assert.ErrorIs(t, err, ErrCryptInit)
		assert.ErrorIs(t, err, ErrWrongKey)
	})

	t.Run("opened with secret instead of keyfile", func(t *testing.T) {
		secretOpts := opts
		secretOpts.Keyfile = ""
		v := New(secretOpts)
		v.Secret = "secret"
		err := v.CheckCrypt()
		assert.ErrorIs(t, err, ErrCryptInit)
		assert.ErrorIs(t, err, ErrKeySourceMismatch)
	})

	t.Run("malformed keyfile", func(t *testing.T) {
		fresh := testOptions(t.TempDir())
		fresh.Keyfile = filepath.Join(t.TempDir(), "bad.key")
		require.NoError(t, os.WriteFile(fresh.Keyfile, []byte("not-hex"), 0600))

		v := New(fresh)
		assert.ErrorIs(t, v.CheckCrypt(), ErrCryptInit)
	})
}

func TestDecryptRejectsBadInput(t *testing.T) {
	v := openTestVault(t, testOptions(t.TempDir()), "secret")
	foreign := openTestVault(t, testOptions(t.TempDir()), "secret")

	ct, err := v.Encrypt("payload")
	require.NoError(t, err)
	foreignCT, err := foreign.Encrypt("payload")
	require.NoError(t, err)

	tampered := []byte(ct)
	if tampered[len(tampered)/2] == 'A' {
		tampered[len(tampered)/2] = 'B'
	} else {
		tampered[len(tampered)/2] = 'A'
	}

	tests := []struct {
		name       string
		ciphertext string
	}{
		{"not base64", "***"},
		{"truncated", ct[:8]},
		{"empty", ""},
		{"tampered", string(tampered)},
		{"foreign key", foreignCT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.ciphertext)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "State(7)", State(7).String())
}
