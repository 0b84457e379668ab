// Package extract drives a datamap import and a workbook extraction through
// parsing, persistence, indexing and traversal.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/checksum"
	"github.com/starford/datamaps/internal/index"
	"github.com/starford/datamaps/internal/models"
	"github.com/starford/datamaps/internal/parser"
	"github.com/starford/datamaps/internal/store"
)

// Run stages, in order.
const (
	StageInit                = "init"
	StageDefinitionLoaded    = "definition_loaded"
	StageDefinitionPersisted = "definition_persisted"
	StageIndexBuilt          = "index_built"
	StageTraversing          = "traversing"
	StageResultsCommitted    = "results_committed"
	StageFailed              = "failed"
)

// ErrNothingToDo is returned when a Request names neither a definition nor a workbook.
var ErrNothingToDo = errors.New("request has no definition and no workbook")

// Store is the persistence the orchestrator needs. *store.Store implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
	GetDatamap(ctx context.Context, id int64) (*models.Datamap, error)
	FindDatamap(ctx context.Context, name string) (*models.Datamap, error)
	Lines(ctx context.Context, dmID int64) ([]models.DatamapLine, error)
}

// Request describes one invocation. A definition (DefinitionPath or
// Definition) is imported first when present; otherwise the datamap is
// selected by DatamapID, or by the newest datamap called DatamapName. The
// workbook is traversed only when WorkbookPath is set.
type Request struct {
	DefinitionPath string
	Definition     io.Reader
	Name           string
	Reset          bool

	DatamapID   int64
	DatamapName string

	WorkbookPath string
}

func (r Request) hasDefinition() bool {
	return r.DefinitionPath != "" || r.Definition != nil
}

// Report summarises a run. On failure it carries what was known when the
// run stopped and Stage is StageFailed.
type Report struct {
	Stage         string                  `json:"stage"`
	Datamap       *models.Datamap         `json:"datamap,omitempty"`
	Accepted      int                     `json:"accepted"`
	Rejected      int                     `json:"rejected"`
	Diagnostics   []*apperr.RecordError   `json:"diagnostics,omitempty"`
	Run           *models.ExtractionRun   `json:"run,omitempty"`
	Values        []models.ExtractedValue `json:"values,omitempty"`
	SheetsVisited []string                `json:"sheets_visited,omitempty"`
	SheetsMissing []string                `json:"sheets_missing,omitempty"`
	CellsVisited  int                     `json:"cells_visited"`
}

// Orchestrator owns the transaction boundaries of imports and extractions.
type Orchestrator struct {
	store  Store
	open   WorkbookOpener
	logger *slog.Logger
}

// New creates an orchestrator. A nil logger discards output.
func New(st Store, open WorkbookOpener, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{store: st, open: open, logger: logger}
}

// Import parses the definition at path and stores it as a new datamap,
// resetting the schema first when reset is set.
func (o *Orchestrator) Import(ctx context.Context, path, name string, reset bool) (*Report, error) {
	return o.Run(ctx, Request{DefinitionPath: path, Name: name, Reset: reset})
}

// Extract traverses the workbook at path against a stored datamap.
func (o *Orchestrator) Extract(ctx context.Context, datamapID int64, datamapName, path string) (*Report, error) {
	return o.Run(ctx, Request{DatamapID: datamapID, DatamapName: datamapName, WorkbookPath: path})
}

// Run executes req. Every failure returns a *apperr.StageError naming the
// stage that was being entered. A definition imported by a run that also
// extracts shares one transaction with the results, so a failed run leaves
// the store as it was.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	rep := &Report{Stage: StageInit}
	stage := StageDefinitionLoaded
	fail := func(err error) (*Report, error) {
		rep.Stage = StageFailed
		if req.hasDefinition() {
			// rolled back with the transaction
			rep.Datamap = nil
		}
		o.logger.Error("run failed",
			slog.String("stage", stage),
			slog.Int("accepted", rep.Accepted),
			slog.Int("rejected", rep.Rejected),
			slog.String("error", err.Error()))
		return rep, &apperr.StageError{Stage: stage, Accepted: rep.Accepted, Rejected: rep.Rejected, Err: err}
	}

	if !req.hasDefinition() && req.WorkbookPath == "" {
		return fail(ErrNothingToDo)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	var lines []models.DatamapLine
	if req.hasDefinition() {
		res, err := o.load(req)
		if err != nil {
			return fail(err)
		}
		rep.Accepted, rep.Rejected, rep.Diagnostics = res.Accepted(), res.Rejected(), res.Diagnostics
		lines = res.Lines
	} else {
		dm, stored, err := o.selectDatamap(ctx, req)
		if err != nil {
			return fail(err)
		}
		rep.Datamap, rep.Accepted = dm, len(stored)
		lines = stored
	}
	rep.Stage = StageDefinitionLoaded

	var (
		run    *models.ExtractionRun
		values []models.ExtractedValue
	)
	err := o.store.WithTx(ctx, func(tx *store.Tx) error {
		if req.hasDefinition() {
			stage = StageDefinitionPersisted
			dm, err := o.persist(ctx, tx, req, lines)
			if err != nil {
				return err
			}
			rep.Datamap = dm
		}

		stage = StageIndexBuilt
		ix, err := index.Build(lines)
		if err != nil {
			return err
		}
		o.logger.Info("index built",
			slog.Int64("datamap_id", rep.Datamap.ID),
			slog.Int("locations", ix.Len()),
			slog.Int("sheets", len(ix.Sheets())))
		if req.WorkbookPath == "" {
			return ctx.Err()
		}

		stage = StageTraversing
		if values, err = o.traverse(ctx, req.WorkbookPath, rep.Datamap.ID, ix, rep); err != nil {
			return err
		}
		sum, err := checksum.File(req.WorkbookPath)
		if err != nil {
			return err
		}

		stage = StageResultsCommitted
		if err := ctx.Err(); err != nil {
			return err
		}
		run = &models.ExtractionRun{
			ID:        uuid.NewString(),
			DatamapID: rep.Datamap.ID,
			Source:    req.WorkbookPath,
			Checksum:  sum,
		}
		for i := range values {
			values[i].RunID = run.ID
		}
		return tx.RecordExtraction(ctx, run, values)
	})
	if err != nil {
		if stage == StageResultsCommitted && !errors.Is(err, apperr.ErrPartialWriteRefused) {
			err = fmt.Errorf("%w: %w", apperr.ErrPartialWriteRefused, err)
		}
		return fail(err)
	}

	if run == nil {
		rep.Stage = StageIndexBuilt
		return rep, nil
	}
	rep.Run, rep.Values = run, values
	rep.Stage = StageResultsCommitted
	o.logger.Info("extraction committed",
		slog.String("run_id", run.ID),
		slog.Int64("datamap_id", run.DatamapID),
		slog.Int("values", len(values)),
		slog.Int("cells_visited", rep.CellsVisited))
	return rep, nil
}

func (o *Orchestrator) load(req Request) (*parser.Result, error) {
	var (
		res *parser.Result
		err error
	)
	if req.Definition != nil {
		res, err = parser.Parse(req.Definition)
	} else {
		res, err = parser.ParseFile(req.DefinitionPath)
	}
	if err != nil {
		return nil, err
	}
	for _, d := range res.Diagnostics {
		o.logger.Warn("definition line rejected",
			slog.Int("line", d.Line),
			slog.String("reason", d.Reason),
			slog.String("text", d.Text))
	}
	o.logger.Info("definition loaded",
		slog.String("source", req.DefinitionPath),
		slog.Int("accepted", res.Accepted()),
		slog.Int("rejected", res.Rejected()))
	return res, nil
}

// persist writes the datamap and its lines inside tx, resetting the schema
// first when asked.
func (o *Orchestrator) persist(ctx context.Context, tx *store.Tx, req Request, lines []models.DatamapLine) (*models.Datamap, error) {
	if req.Reset {
		o.logger.Warn("resetting schema; all stored datamaps and results are dropped")
		if err := tx.ResetSchema(ctx); err != nil {
			return nil, err
		}
	}
	dm, err := tx.CreateDatamap(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertLines(ctx, dm.ID, lines); err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].DatamapID = dm.ID
	}
	o.logger.Info("datamap stored",
		slog.Int64("datamap_id", dm.ID),
		slog.String("name", dm.Name),
		slog.Int("lines", len(lines)))
	return dm, nil
}

func (o *Orchestrator) selectDatamap(ctx context.Context, req Request) (*models.Datamap, []models.DatamapLine, error) {
	var (
		dm  *models.Datamap
		err error
	)
	switch {
	case req.DatamapID != 0:
		dm, err = o.store.GetDatamap(ctx, req.DatamapID)
	case req.DatamapName != "":
		dm, err = o.store.FindDatamap(ctx, req.DatamapName)
	default:
		return nil, nil, fmt.Errorf("no datamap selected: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	lines, err := o.store.Lines(ctx, dm.ID)
	if err != nil {
		return nil, nil, err
	}
	return dm, lines, nil
}

// traverse visits the indexed sheets of the workbook and collects every cell
// whose location is in ix, in encounter order.
func (o *Orchestrator) traverse(ctx context.Context, path string, dmID int64, ix *index.Index, rep *Report) ([]models.ExtractedValue, error) {
	wb, err := o.open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	present := wb.Sheets()
	values := []models.ExtractedValue{}
	for _, sheet := range ix.Sheets() {
		if !slices.Contains(present, sheet) {
			o.logger.Warn("sheet not in workbook",
				slog.String("sheet", sheet),
				slog.Int("locations", ix.SheetLen(sheet)))
			rep.SheetsMissing = append(rep.SheetsMissing, sheet)
			continue
		}
		found, err := o.traverseSheet(ctx, wb, sheet, dmID, ix, rep)
		if err != nil {
			return nil, err
		}
		values = append(values, found...)
		rep.SheetsVisited = append(rep.SheetsVisited, sheet)
	}
	return values, nil
}

func (o *Orchestrator) traverseSheet(ctx context.Context, wb Workbook, sheet string, dmID int64, ix *index.Index, rep *Report) ([]models.ExtractedValue, error) {
	cur, err := wb.Cells(sheet)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var found []models.ExtractedValue
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := cur.Cell()
		rep.CellsVisited++
		key, ok := ix.Lookup(sheet, c.Ref)
		if !ok {
			continue
		}
		o.logger.Debug("cell matched",
			slog.String("key", key),
			slog.String("sheet", sheet),
			slog.String("cellref", c.Ref))
		found = append(found, models.ExtractedValue{
			DatamapID: dmID,
			Key:       key,
			Sheet:     sheet,
			Cellref:   c.Ref,
			Value:     c.Value,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return found, nil
}
