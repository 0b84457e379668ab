package extract

// Cell is one non-empty cell produced by a workbook traversal.
type Cell struct {
	Sheet string
	Row   int // 1-based
	Col   int // 1-based
	Ref   string
	Value string
}

// CellCursor walks the cells of one sheet in row-major order.
//
//	for cur.Next() {
//		c := cur.Cell()
//	}
//	if err := cur.Err(); err != nil { ... }
type CellCursor interface {
	Next() bool
	Cell() Cell
	Err() error
	Close() error
}

// Workbook is an opened spreadsheet.
type Workbook interface {
	// Sheets returns sheet names in workbook order.
	Sheets() []string
	// Cells opens a cursor over sheet. Sheet must be one of Sheets.
	Cells(sheet string) (CellCursor, error)
	Close() error
}

// WorkbookOpener opens the workbook at path. Failures wrap
// apperr.ErrSourceUnreadable.
type WorkbookOpener func(path string) (Workbook, error)
