package api

import (
	"github.com/starford/datamaps/internal/datamapservice"
	"github.com/starford/datamaps/internal/models"
	"github.com/starford/datamaps/internal/store"
)

// DatamapSummary is a datamap with its line count (aliased from the store layer).
type DatamapSummary = store.DatamapSummary

// DatamapDetail is a datamap with its lines (aliased from the domain layer).
type DatamapDetail = datamapservice.DatamapDetail

// RunValues is one run with its values (aliased from the domain layer).
type RunValues = datamapservice.RunValues

// DatamapListResponse wraps the datamap listing.
type DatamapListResponse struct {
	Datamaps []DatamapSummary `json:"datamaps" validate:"required"`
}

// LinesResponse wraps the lines of one datamap.
type LinesResponse struct {
	DatamapID int64                `json:"datamap_id" example:"1" validate:"required"`
	Lines     []models.DatamapLine `json:"lines" validate:"required"`
}

// RunListResponse wraps the extraction runs of one datamap.
type RunListResponse struct {
	Runs []models.ExtractionRun `json:"runs" validate:"required"`
}
