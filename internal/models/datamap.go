// Package models defines the domain types for datamaps.
package models

import "time"

// DefaultDatamapName is used when an import does not name its datamap.
const DefaultDatamapName = "New datamap"

// Datamap is one named definition set.
type Datamap struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DatamapLine binds a key to a sheet and cell reference.
type DatamapLine struct {
	DatamapID int64  `json:"datamap_id,omitempty" db:"dm_id"`
	Key       string `json:"key" db:"key"`
	Sheet     string `json:"sheet" db:"sheet"`
	Cellref   string `json:"cellref" db:"cellref"`
	Line      int    `json:"line" db:"line"` // 1-based line in the definition source
}

// ExtractionRun records one committed extraction of a workbook.
type ExtractionRun struct {
	ID        string    `json:"id" db:"id"`
	DatamapID int64     `json:"datamap_id" db:"dm_id"`
	Source    string    `json:"source" db:"source"`
	Checksum  string    `json:"checksum" db:"checksum"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ExtractedValue is the cell text found at a key's location during one run.
type ExtractedValue struct {
	RunID     string `json:"run_id" db:"run_id"`
	DatamapID int64  `json:"datamap_id" db:"dm_id"`
	Key       string `json:"key" db:"key"`
	Sheet     string `json:"sheet" db:"sheet"`
	Cellref   string `json:"cellref" db:"cellref"`
	Value     string `json:"value" db:"value"`
}
