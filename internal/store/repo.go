package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/models"
)

// DatamapSummary is a datamap with the number of lines it owns.
type DatamapSummary struct {
	models.Datamap
	LineCount int `json:"line_count" db:"line_count"`
}

// CreateDatamap inserts a datamap row and returns it with its new id.
func (t *Tx) CreateDatamap(ctx context.Context, name string) (*models.Datamap, error) {
	if name == "" {
		name = models.DefaultDatamapName
	}
	dm := &models.Datamap{Name: name, CreatedAt: time.Now()}

	query, args, err := sq.Insert("datamap").
		Columns("name", "created_at").
		Values(dm.Name, dm.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build datamap insert: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("create datamap", err)
	}
	if dm.ID, err = res.LastInsertId(); err != nil {
		return nil, wrap("datamap id", err)
	}
	return dm, nil
}

// InsertLines bulk inserts lines for datamap dmID with one prepared statement.
func (t *Tx) InsertLines(ctx context.Context, dmID int64, lines []models.DatamapLine) error {
	if len(lines) == 0 {
		return nil
	}
	query, _, err := sq.Insert("datamap_line").
		Columns("dm_id", "key", "sheet", "cellref", "line").
		Values(0, "", "", "", 0).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build line insert: %w", err)
	}
	stmt, err := t.tx.PreparexContext(ctx, query)
	if err != nil {
		return wrap("prepare line insert", err)
	}
	defer stmt.Close()

	for _, l := range lines {
		if _, err := stmt.ExecContext(ctx, dmID, l.Key, l.Sheet, l.Cellref, l.Line); err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrPartialWriteRefused, wrap("insert line", err))
		}
	}
	return nil
}

// RecordExtraction writes run and all of its values in one transaction.
// Either every value is stored or none is.
func (s *Store) RecordExtraction(ctx context.Context, run *models.ExtractionRun, values []models.ExtractedValue) error {
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.RecordExtraction(ctx, run, values)
	})
	if err != nil && !errors.Is(err, apperr.ErrPartialWriteRefused) {
		return fmt.Errorf("%w: %w", apperr.ErrPartialWriteRefused, err)
	}
	return err
}

// RecordExtraction writes run and its values inside the transaction. Values
// keep their slice order.
func (t *Tx) RecordExtraction(ctx context.Context, run *models.ExtractionRun, values []models.ExtractedValue) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	query, args, err := sq.Insert("extraction_run").
		Columns("id", "dm_id", "source", "checksum", "created_at").
		Values(run.ID, run.DatamapID, run.Source, run.Checksum, run.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build run insert: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrPartialWriteRefused, wrap("insert run", err))
	}
	if len(values) == 0 {
		return nil
	}

	query, _, err = sq.Insert("extracted_value").
		Columns("run_id", "dm_id", "key", "sheet", "cellref", "value", "position").
		Values("", 0, "", "", "", "", 0).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build value insert: %w", err)
	}
	stmt, err := t.tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrPartialWriteRefused, wrap("prepare value insert", err))
	}
	defer stmt.Close()

	for i, v := range values {
		if _, err := stmt.ExecContext(ctx, run.ID, run.DatamapID, v.Key, v.Sheet, v.Cellref, v.Value, i); err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrPartialWriteRefused, wrap("insert value", err))
		}
	}
	return nil
}

// GetDatamap returns the datamap with the given id.
func (s *Store) GetDatamap(ctx context.Context, id int64) (*models.Datamap, error) {
	query, args, err := sq.Select("id", "name", "created_at").
		From("datamap").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build datamap query: %w", err)
	}
	var dm models.Datamap
	if err := s.db.GetContext(ctx, &dm, query, args...); err != nil {
		return nil, wrap(fmt.Sprintf("get datamap %d", id), err)
	}
	return &dm, nil
}

// FindDatamap returns the most recently created datamap called name.
func (s *Store) FindDatamap(ctx context.Context, name string) (*models.Datamap, error) {
	query, args, err := sq.Select("id", "name", "created_at").
		From("datamap").
		Where(sq.Eq{"name": name}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build datamap query: %w", err)
	}
	var dm models.Datamap
	if err := s.db.GetContext(ctx, &dm, query, args...); err != nil {
		return nil, wrap(fmt.Sprintf("find datamap %q", name), err)
	}
	return &dm, nil
}

// ListDatamaps returns every datamap with its line count, oldest first.
func (s *Store) ListDatamaps(ctx context.Context) ([]DatamapSummary, error) {
	query, args, err := sq.Select("d.id AS id", "d.name AS name", "d.created_at AS created_at", "COUNT(l.id) AS line_count").
		From("datamap d").
		LeftJoin("datamap_line l ON l.dm_id = d.id").
		GroupBy("d.id").
		OrderBy("d.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build datamap list: %w", err)
	}
	out := []DatamapSummary{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrap("list datamaps", err)
	}
	return out, nil
}

// Lines returns the lines of datamap dmID in definition order.
func (s *Store) Lines(ctx context.Context, dmID int64) ([]models.DatamapLine, error) {
	query, args, err := sq.Select("dm_id", "key", "sheet", "cellref", "line").
		From("datamap_line").
		Where(sq.Eq{"dm_id": dmID}).
		OrderBy("line", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build line query: %w", err)
	}
	out := []models.DatamapLine{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrap("list lines", err)
	}
	return out, nil
}

// DeleteDatamap removes a datamap and, by cascade, its lines. Extraction
// results that reference it are kept; use ClearExtractions to drop them.
func (s *Store) DeleteDatamap(ctx context.Context, id int64) error {
	query, args, err := sq.Delete("datamap").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("store: build datamap delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("delete datamap", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("delete datamap", err)
	}
	if n == 0 {
		return fmt.Errorf("store: delete datamap %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ClearExtractions removes every run and value recorded against dmID and
// returns the number of runs removed.
func (s *Store) ClearExtractions(ctx context.Context, dmID int64) (int64, error) {
	var removed int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		query, args, err := sq.Delete("extracted_value").Where(sq.Eq{"dm_id": dmID}).ToSql()
		if err != nil {
			return fmt.Errorf("store: build value delete: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx, query, args...); err != nil {
			return wrap("clear values", err)
		}
		query, args, err = sq.Delete("extraction_run").Where(sq.Eq{"dm_id": dmID}).ToSql()
		if err != nil {
			return fmt.Errorf("store: build run delete: %w", err)
		}
		res, err := tx.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return wrap("clear runs", err)
		}
		removed, err = res.RowsAffected()
		return wrap("clear runs", err)
	})
	return removed, err
}

// ListRuns returns the extraction runs of dmID, newest first.
func (s *Store) ListRuns(ctx context.Context, dmID int64) ([]models.ExtractionRun, error) {
	query, args, err := runSelect().Where(sq.Eq{"dm_id": dmID}).OrderBy("seq DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build run query: %w", err)
	}
	out := []models.ExtractionRun{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrap("list runs", err)
	}
	return out, nil
}

// GetRun returns the extraction run with the given id.
func (s *Store) GetRun(ctx context.Context, runID string) (*models.ExtractionRun, error) {
	query, args, err := runSelect().Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build run query: %w", err)
	}
	var run models.ExtractionRun
	if err := s.db.GetContext(ctx, &run, query, args...); err != nil {
		return nil, wrap(fmt.Sprintf("get run %s", runID), err)
	}
	return &run, nil
}

// LatestRun returns the newest extraction run of dmID.
func (s *Store) LatestRun(ctx context.Context, dmID int64) (*models.ExtractionRun, error) {
	query, args, err := runSelect().Where(sq.Eq{"dm_id": dmID}).OrderBy("seq DESC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build run query: %w", err)
	}
	var run models.ExtractionRun
	if err := s.db.GetContext(ctx, &run, query, args...); err != nil {
		return nil, wrap(fmt.Sprintf("latest run of datamap %d", dmID), err)
	}
	return &run, nil
}

// Values returns the values recorded by runID in encounter order.
func (s *Store) Values(ctx context.Context, runID string) ([]models.ExtractedValue, error) {
	query, args, err := sq.Select("run_id", "dm_id", "key", "sheet", "cellref", "value").
		From("extracted_value").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build value query: %w", err)
	}
	out := []models.ExtractedValue{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, wrap("list values", err)
	}
	return out, nil
}

// LatestValues returns the values of the newest run of dmID.
func (s *Store) LatestValues(ctx context.Context, dmID int64) (*models.ExtractionRun, []models.ExtractedValue, error) {
	run, err := s.LatestRun(ctx, dmID)
	if err != nil {
		return nil, nil, err
	}
	values, err := s.Values(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, values, nil
}

func runSelect() sq.SelectBuilder {
	return sq.Select("id", "dm_id", "source", "checksum", "created_at").From("extraction_run")
}
