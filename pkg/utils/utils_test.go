package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AZPUB_TEST_FROM_FILE=file\nAZPUB_TEST_PRESET=file\n"), 0o600))
	t.Setenv("AZPUB_TEST_PRESET", "env")
	t.Cleanup(func() { _ = os.Unsetenv("AZPUB_TEST_FROM_FILE") })

	loaded := LoadEnvFile(filepath.Join(dir, "missing"), dir)

	assert.Equal(t, filepath.Join(dir, ".env"), loaded)
	assert.Equal(t, "file", os.Getenv("AZPUB_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("AZPUB_TEST_PRESET"))
}

func TestGetPersistentServerID(t *testing.T) {
	assert.Equal(t, "node-1", GetPersistentServerID("node-1", t.TempDir()))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".server_id"), []byte("azpub-saved\n"), 0o600))
	assert.Equal(t, "azpub-saved", GetPersistentServerID("", dir))

	id := GetPersistentServerID("", t.TempDir())
	assert.True(t, strings.HasPrefix(id, "azpub-"), id)
}

func TestPanicIfNeeded(t *testing.T) {
	assert.NotPanics(t, func() { PanicIfNeeded(nil) })
	assert.Panics(t, func() { PanicIfNeeded(assert.AnError) })
}
