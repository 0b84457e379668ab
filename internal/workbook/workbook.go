// Package workbook streams cells out of .xlsx files with excelize.
package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/extract"
)

// Options controls how cell text is rendered.
type Options struct {
	// RawValues returns stored values instead of number-formatted text.
	RawValues bool
}

// File is an open workbook.
type File struct {
	f *excelize.File
}

// Open opens the workbook at path.
func Open(path string, opts Options) (*File, error) {
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: opts.RawValues})
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w: %w", path, apperr.ErrSourceUnreadable, err)
	}
	return &File{f: f}, nil
}

// Opener returns an extract.WorkbookOpener using opts.
func Opener(opts Options) extract.WorkbookOpener {
	return func(path string) (extract.Workbook, error) {
		return Open(path, opts)
	}
}

// Sheets returns sheet names in workbook order.
func (w *File) Sheets() []string {
	return w.f.GetSheetList()
}

// Cells returns a cursor over the non-empty cells of sheet, row by row.
func (w *File) Cells(sheet string) (extract.CellCursor, error) {
	rows, err := w.f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w: %w", sheet, apperr.ErrSourceUnreadable, err)
	}
	return &cursor{sheet: sheet, rows: rows}, nil
}

// Close releases the workbook and its temporary files.
func (w *File) Close() error {
	return w.f.Close()
}

type cursor struct {
	sheet string
	rows  *excelize.Rows
	row   int
	cols  []string
	col   int // index into cols of the current cell
	cell  extract.Cell
	err   error
	done  bool
}

func (c *cursor) Next() bool {
	if c.done {
		return false
	}
	for {
		for c.col+1 < len(c.cols) {
			c.col++
			v := c.cols[c.col]
			if v == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(c.col+1, c.row)
			if err != nil {
				return c.stop(err)
			}
			c.cell = extract.Cell{Sheet: c.sheet, Row: c.row, Col: c.col + 1, Ref: ref, Value: v}
			return true
		}

		// Rows yields gaps between sparse rows as empty rows, so the counter
		// tracks the sheet row number.
		if !c.rows.Next() {
			return c.stop(c.rows.Error())
		}
		c.row++
		cols, err := c.rows.Columns()
		if err != nil {
			return c.stop(err)
		}
		c.cols, c.col = cols, -1
	}
}

func (c *cursor) stop(err error) bool {
	if err != nil {
		c.err = fmt.Errorf("%w: %w", apperr.ErrSourceUnreadable, err)
	}
	c.done = true
	return false
}

func (c *cursor) Cell() extract.Cell { return c.cell }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.done = true
	return c.rows.Close()
}
