package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filelease/pkg/leasestore"
)

func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// CreateFile writes content to path, creating parent directories.
func CreateFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)

	err = os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
}

// WriteExpiry writes a marker recording expiry at path.
func WriteExpiry(t *testing.T, path string, expiry time.Time) {
	t.Helper()

	content, err := leasestore.Encode(expiry)
	require.NoError(t, err)

	CreateFile(t, path, string(content))
}

// ReadExpiry parses the marker at path.
func ReadExpiry(t *testing.T, path string) time.Time {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	expiry, err := leasestore.Decode(content)
	require.NoError(t, err)

	return expiry
}

// FileExists reports whether path exists, failing the test on any other
// stat error.
func FileExists(t *testing.T, path string) bool {
	t.Helper()

	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	require.NoError(t, err)

	return true
}
