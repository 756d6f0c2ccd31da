package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// GetFileChecksum hashes the whole content of a file. Two files with the same
// content share a checksum, which is what makes ingestion idempotent.
func GetFileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	sum, err := FromReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", filePath, err)
	}
	return sum, nil
}

func FromReader(r io.Reader) (string, error) {
	hasher := xxhash.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CalculateHash fingerprints a single record.
func CalculateHash(fields ...string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(fields, ";")))
}
