package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileChecksum(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(a, []byte("EcoRI;1;GAATTC\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("EcoRI;1;GAATTC\n"), 0644))
	require.NoError(t, os.WriteFile(c, []byte("BamHI;1;GGATCC\n"), 0644))

	t.Run("same content same checksum", func(t *testing.T) {
		sumA, err := GetFileChecksum(a)
		require.NoError(t, err)
		sumB, err := GetFileChecksum(b)
		require.NoError(t, err)
		assert.Equal(t, sumA, sumB)
		assert.Len(t, sumA, 16)
	})

	t.Run("different content different checksum", func(t *testing.T) {
		sumA, err := GetFileChecksum(a)
		require.NoError(t, err)
		sumC, err := GetFileChecksum(c)
		require.NoError(t, err)
		assert.NotEqual(t, sumA, sumC)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := GetFileChecksum(filepath.Join(dir, "nope.txt"))
		assert.Error(t, err)
	})

	t.Run("reader and file agree", func(t *testing.T) {
		sumA, err := GetFileChecksum(a)
		require.NoError(t, err)
		sumR, err := FromReader(strings.NewReader("EcoRI;1;GAATTC\n"))
		require.NoError(t, err)
		assert.Equal(t, sumA, sumR)
	})
}

func TestCalculateHash(t *testing.T) {
	assert.Equal(t, CalculateHash("a", "1"), CalculateHash("a;1"))
	assert.NotEqual(t, CalculateHash("a;1"), CalculateHash("a;2"))
	assert.Len(t, CalculateHash("x"), 16)
}
