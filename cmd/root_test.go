package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAILREADER_TEST_FROM_FILE=file\nMAILREADER_TEST_PRESET=file\n"), 0600))

	t.Setenv("MAILREADER_TEST_PRESET", "env")
	t.Setenv("MAILREADER_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("MAILREADER_TEST_FROM_FILE"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "file", os.Getenv("MAILREADER_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("MAILREADER_TEST_PRESET"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
