package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDir(t *testing.T) {
	dir := t.TempDir()

	lock, err := LockDir(dir)
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(dir, LockFileName)))

	_, err = LockDir(dir)
	assert.Error(t, err, "second lock on the same dir must fail")

	require.NoError(t, lock.Unlock())

	lock, err = LockDir(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())
}

func TestTokenHex(t *testing.T) {
	a := TokenHex(4)
	b := TokenHex(4)
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
