package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/datamaps/internal/apperr"
)

func TestFileMatchesSum(t *testing.T) {
	data := []byte("workbook bytes")
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got != Sum(data) {
		t.Errorf("File = %s, Sum = %s", got, Sum(data))
	}
	if len(got) != 64 {
		t.Errorf("digest length = %d", len(got))
	}
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.xlsx"))
	if !errors.Is(err, apperr.ErrSourceUnreadable) {
		t.Fatalf("err = %v, want ErrSourceUnreadable", err)
	}
}
