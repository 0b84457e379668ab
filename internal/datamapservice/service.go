// Package datamapservice answers read and housekeeping queries about stored
// datamaps and their extraction results for the CLI, HTTP API and MCP server.
package datamapservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/models"
	"github.com/starford/datamaps/internal/store"
)

// DatamapDetail is a datamap with its lines.
type DatamapDetail struct {
	models.Datamap
	Lines []models.DatamapLine `json:"lines"`
}

// RunValues is one extraction run with the values it recorded.
type RunValues struct {
	Run    *models.ExtractionRun   `json:"run"`
	Values []models.ExtractedValue `json:"values"`
}

// DeleteResult reports what DeleteDatamap removed.
type DeleteResult struct {
	Datamap     models.Datamap `json:"datamap"`
	RunsRemoved int64          `json:"runs_removed"`
}

// Service coordinates store queries.
type Service struct {
	store *store.Store
}

// NewService creates a new datamap service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Resolve finds a datamap by reference: a decimal id, or otherwise the name
// of the newest datamap carrying it.
func (s *Service) Resolve(ctx context.Context, ref string) (*models.Datamap, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty datamap reference: %w", apperr.ErrNotFound)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		dm, err := s.store.GetDatamap(ctx, id)
		if !errors.Is(err, apperr.ErrNotFound) {
			return dm, err
		}
		// a datamap may be named "2024"
	}
	return s.store.FindDatamap(ctx, ref)
}

// ListDatamaps returns every datamap with its line count.
func (s *Service) ListDatamaps(ctx context.Context) ([]store.DatamapSummary, error) {
	return s.store.ListDatamaps(ctx)
}

// GetDatamap returns the datamap ref points at together with its lines.
func (s *Service) GetDatamap(ctx context.Context, ref string) (*DatamapDetail, error) {
	dm, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.Lines(ctx, dm.ID)
	if err != nil {
		return nil, err
	}
	return &DatamapDetail{Datamap: *dm, Lines: nonNilSlice(lines)}, nil
}

// Runs returns the extraction runs of a datamap, newest first.
func (s *Service) Runs(ctx context.Context, ref string) ([]models.ExtractionRun, error) {
	dm, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, dm.ID)
}

// Values returns the values of runID, which must belong to the datamap ref
// points at. An empty runID selects the newest run.
func (s *Service) Values(ctx context.Context, ref, runID string) (*RunValues, error) {
	dm, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		run, values, err := s.store.LatestValues(ctx, dm.ID)
		if err != nil {
			return nil, err
		}
		return &RunValues{Run: run, Values: nonNilSlice(values)}, nil
	}
	rv, err := s.RunValues(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rv.Run.DatamapID != dm.ID {
		return nil, fmt.Errorf("run %s of datamap %d: %w", runID, dm.ID, apperr.ErrNotFound)
	}
	return rv, nil
}

// RunValues returns one run and its values.
func (s *Service) RunValues(ctx context.Context, runID string) (*RunValues, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	values, err := s.store.Values(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &RunValues{Run: run, Values: nonNilSlice(values)}, nil
}

// Lookup returns the value recorded for key by the newest run of the datamap.
func (s *Service) Lookup(ctx context.Context, ref, key string) (*models.ExtractedValue, error) {
	rv, err := s.Values(ctx, ref, "")
	if err != nil {
		return nil, err
	}
	for i := range rv.Values {
		if rv.Values[i].Key == key {
			return &rv.Values[i], nil
		}
	}
	return nil, fmt.Errorf("key %q in run %s: %w", key, rv.Run.ID, apperr.ErrNotFound)
}

// DeleteDatamap removes the datamap and its lines. With purgeResults its
// extraction runs and values are removed as well.
func (s *Service) DeleteDatamap(ctx context.Context, ref string, purgeResults bool) (*DeleteResult, error) {
	dm, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{Datamap: *dm}
	if purgeResults {
		if res.RunsRemoved, err = s.store.ClearExtractions(ctx, dm.ID); err != nil {
			return nil, err
		}
	}
	if err := s.store.DeleteDatamap(ctx, dm.ID); err != nil {
		return nil, err
	}
	return res, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
