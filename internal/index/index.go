// Package index provides the in-memory (sheet, cellref) → key lookup used
// while traversing a workbook.
package index

import (
	"slices"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/models"
)

type entry struct {
	key  string
	line int
}

// Index maps a sheet name and cell reference to the key bound there.
// Lookups use exact, case-sensitive comparison.
type Index struct {
	cells map[string]map[string]entry
	order []string
	size  int
}

// Build indexes lines in order. Two lines sharing a sheet and cellref fail
// with a *apperr.DuplicateLocationError naming both keys.
func Build(lines []models.DatamapLine) (*Index, error) {
	ix := &Index{cells: make(map[string]map[string]entry)}
	for _, l := range lines {
		refs, ok := ix.cells[l.Sheet]
		if !ok {
			refs = make(map[string]entry)
			ix.cells[l.Sheet] = refs
			ix.order = append(ix.order, l.Sheet)
		}
		if prev, dup := refs[l.Cellref]; dup {
			return nil, &apperr.DuplicateLocationError{
				Sheet:     l.Sheet,
				Cellref:   l.Cellref,
				FirstKey:  prev.key,
				FirstLine: prev.line,
				Key:       l.Key,
				Line:      l.Line,
			}
		}
		refs[l.Cellref] = entry{key: l.Key, line: l.Line}
		ix.size++
	}
	return ix, nil
}

// Lookup returns the key bound to sheet!cellref.
func (ix *Index) Lookup(sheet, cellref string) (string, bool) {
	e, ok := ix.cells[sheet][cellref]
	return e.key, ok
}

// Sheets returns the indexed sheet names in first-seen order.
func (ix *Index) Sheets() []string {
	return slices.Clone(ix.order)
}

// HasSheet reports whether any line targets sheet.
func (ix *Index) HasSheet(sheet string) bool {
	_, ok := ix.cells[sheet]
	return ok
}

// SheetLen returns the number of locations indexed on sheet.
func (ix *Index) SheetLen(sheet string) int {
	return len(ix.cells[sheet])
}

// Len returns the total number of indexed locations.
func (ix *Index) Len() int {
	return ix.size
}
