package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/illarion/cryptvault/internal/core"
)

func executeCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), err
}

func initVault(t *testing.T) string {
	t.Helper()
	gokeyring.MockInit()
	t.Setenv(core.SecretEnv, "cli-secret")

	file := filepath.Join(t.TempDir(), ".vault")
	out, err := executeCLI(t, "", "init", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized")
	return file
}

func TestInitTwiceFails(t *testing.T) {
	file := initVault(t)

	_, err := executeCLI(t, "", "init", "--file", file)
	assert.ErrorIs(t, err, errAlreadyExists)
}

func TestEncryptDecryptCommands(t *testing.T) {
	file := initVault(t)

	ct, err := executeCLI(t, "", "encrypt", "--file", file, "hello world0")
	require.NoError(t, err)

	out, err := executeCLI(t, "", "decrypt", "--file", file, strings.TrimSpace(ct))
	require.NoError(t, err)
	assert.Equal(t, "hello world0\n", out)

	ct, err = executeCLI(t, "from stdin\n", "encrypt", "--file", file)
	require.NoError(t, err)
	out, err = executeCLI(t, ct, "decrypt", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", out)
}

func TestWrongSecretCommand(t *testing.T) {
	file := initVault(t)
	t.Setenv(core.SecretEnv, "wrong")

	_, err := executeCLI(t, "", "encrypt", "--file", file, "x")
	assert.ErrorIs(t, err, core.ErrWrongKey)

	var msg bytes.Buffer
	PrintError(&msg, err)
	assert.Equal(t, "Error: wrong secret or keyfile\n", msg.String())
}

func TestMissingVault(t *testing.T) {
	t.Setenv(core.SecretEnv, "cli-secret")
	file := filepath.Join(t.TempDir(), ".vault")

	_, err := executeCLI(t, "", "encrypt", "--file", file, "x")
	assert.ErrorIs(t, err, core.ErrNoVault)
	_, statErr := os.Stat(file)
	assert.True(t, os.IsNotExist(statErr), "commands other than init must not create a vault")
}

func TestEntryCommands(t *testing.T) {
	file := initVault(t)

	_, err := executeCLI(t, "", "set", "--file", file, "db/password", "hunter2")
	require.NoError(t, err)
	_, err = executeCLI(t, "multi\nline\n", "set", "--file", file, "config")
	require.NoError(t, err)

	out, err := executeCLI(t, "", "get", "--file", file, "db/password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", out)

	out, err = executeCLI(t, "", "ls", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "config (10 bytes")
	assert.Contains(t, out, "db/password (7 bytes")

	local := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(local, []byte("multi\nline"), 0600))
	out, err = executeCLI(t, "", "diff", "--file", file, "config", local)
	require.NoError(t, err)
	assert.Equal(t, "No changes detected\n", out)

	require.NoError(t, os.WriteFile(local, []byte("multi\nchanged"), 0600))
	out, err = executeCLI(t, "", "diff", "--file", file, "config", local)
	require.NoError(t, err)
	assert.Contains(t, out, "--- vault/config")

	_, err = executeCLI(t, "", "rm", "--file", file, "db/password")
	require.NoError(t, err)
	_, err = executeCLI(t, "", "get", "--file", file, "db/password")
	assert.ErrorIs(t, err, core.ErrEntryNotFound)

	out, err = executeCLI(t, "", "compact", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Compacted:")
}

func TestPasswdAndKeyring(t *testing.T) {
	file := initVault(t)

	ct, err := executeCLI(t, "", "encrypt", "--file", file, "kept")
	require.NoError(t, err)

	out, err := executeCLI(t, "", "keyring", "save", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Secret saved to keyring")

	out, err = executeCLI(t, "", "keyring", "status", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "Secret: stored in keyring\n", out)

	t.Setenv(newSecretEnv, "rotated")
	out, err = executeCLI(t, "", "passwd", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Keyring updated with new secret")
	assert.Contains(t, out, "secret changed successfully")

	// The keyring now carries the rotated secret
	t.Setenv(core.SecretEnv, "")
	out, err = executeCLI(t, "", "decrypt", "--file", file, strings.TrimSpace(ct))
	require.NoError(t, err)
	assert.Equal(t, "kept\n", out)

	out, err = executeCLI(t, "", "keyring", "delete", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "Secret removed from keyring\n", out)
}

func TestKeyfileVaultCommands(t *testing.T) {
	gokeyring.MockInit()
	dir := t.TempDir()
	file := filepath.Join(dir, ".vault")
	key := filepath.Join(dir, "vault.key")

	out, err := executeCLI(t, "", "init", "--file", file, "--keyfile", key)
	require.NoError(t, err)
	assert.Contains(t, out, "key: "+key)

	ct, err := executeCLI(t, "", "encrypt", "--file", file, "--keyfile", key, "with keyfile")
	require.NoError(t, err)
	out, err = executeCLI(t, "", "decrypt", "--file", file, "--keyfile", key, strings.TrimSpace(ct))
	require.NoError(t, err)
	assert.Equal(t, "with keyfile\n", out)

	_, err = executeCLI(t, "", "passwd", "--file", file, "--keyfile", key)
	assert.ErrorIs(t, err, core.ErrKeyfileVault)

	out, err = executeCLI(t, "", "status", "--file", file, "--keyfile", key)
	require.NoError(t, err)
	assert.Contains(t, out, "Key:        keyfile")
	assert.Contains(t, out, "Secrets:    0")
}

func TestOptionsFromEnvironment(t *testing.T) {
	file := initVault(t)
	t.Setenv("VAULT_FILE", file)

	out, err := executeCLI(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Vault:      "+file)
	assert.Contains(t, out, "Key:        secret (PBKDF2-HMAC-SHA256, 210000 iterations)")
}

func TestOptionsFromConfigFile(t *testing.T) {
	file := initVault(t)
	cfg := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("file: "+file+"\n"), 0600))

	out, err := executeCLI(t, "", "ls", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No secrets in "+file)
}
