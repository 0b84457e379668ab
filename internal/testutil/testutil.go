// Package testutil provides shared test helpers for stores, definitions and workbooks.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/starford/datamaps/internal/store"
)

// TestStore creates a temporary SQLite store with a fresh schema that is
// automatically cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "datamaps-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	st, err := store.Open(context.Background(), dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.ResetSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return st
}

// WriteDefinition writes the given lines, one per row, to a definition file
// in a temporary directory and returns its path.
func WriteDefinition(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datamap.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Sheet is one worksheet of a fixture workbook.
type Sheet struct {
	Name  string
	Cells map[string]any
}

// WriteWorkbook saves an .xlsx with the given sheets, in order, to a
// temporary directory and returns its path.
func WriteWorkbook(t *testing.T, sheets ...Sheet) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				t.Fatal(err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			t.Fatal(err)
		}
		for ref, v := range sh.Cells {
			if err := f.SetCellValue(sh.Name, ref, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}
