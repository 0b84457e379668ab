// Package checksum fingerprints workbooks so repeated extractions of the
// same file can be told apart from extractions of an edited copy.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/starford/datamaps/internal/apperr"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File streams the file at path through SHA-256 and returns the hex digest.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w: %w", path, apperr.ErrSourceUnreadable, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w: %w", path, apperr.ErrSourceUnreadable, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
