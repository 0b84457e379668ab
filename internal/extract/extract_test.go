package extract_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/extract"
	"github.com/starford/datamaps/internal/store"
	"github.com/starford/datamaps/internal/testutil"
	"github.com/starford/datamaps/internal/workbook"
)

const header = "key,sheet,cellref"

func newOrchestrator(t *testing.T) (*extract.Orchestrator, *store.Store) {
	t.Helper()
	st := testutil.TestStore(t)
	return extract.New(st, workbook.Opener(workbook.Options{}), nil), st
}

func stageOf(t *testing.T, err error) string {
	t.Helper()
	var se *apperr.StageError
	require.ErrorAs(t, err, &se)
	return se.Stage
}

func TestRun_RoundTrip(t *testing.T) {
	o, st := newOrchestrator(t)
	def := testutil.WriteDefinition(t, header, "greeting,Intro,A1")
	book := testutil.WriteWorkbook(t, testutil.Sheet{Name: "Intro", Cells: map[string]any{"A1": "hello", "B1": "ignored"}})

	rep, err := o.Run(context.Background(), extract.Request{DefinitionPath: def, Reset: true, WorkbookPath: book})
	require.NoError(t, err)

	assert.Equal(t, extract.StageResultsCommitted, rep.Stage)
	require.Len(t, rep.Values, 1)
	assert.Equal(t, "greeting", rep.Values[0].Key)
	assert.Equal(t, "hello", rep.Values[0].Value)
	assert.Equal(t, 2, rep.CellsVisited)
	assert.Equal(t, []string{"Intro"}, rep.SheetsVisited)
	require.NotNil(t, rep.Run)
	assert.Len(t, rep.Run.Checksum, 64)
	assert.Equal(t, book, rep.Run.Source)

	stored, err := st.Values(context.Background(), rep.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Values, stored)
}

func TestImportThenExtractByName(t *testing.T) {
	o, _ := newOrchestrator(t)
	def := testutil.WriteDefinition(t, header,
		"owner,Intro,B2",
		"budget,Finance,C7",
		"greeting,Intro,A1",
	)
	rep, err := o.Import(context.Background(), def, "Quarter 1", false)
	require.NoError(t, err)
	assert.Equal(t, extract.StageIndexBuilt, rep.Stage)
	assert.Equal(t, 3, rep.Accepted)
	assert.Nil(t, rep.Run)

	book := testutil.WriteWorkbook(t,
		testutil.Sheet{Name: "Finance", Cells: map[string]any{"C7": 1200}},
		testutil.Sheet{Name: "Intro", Cells: map[string]any{"A1": "hello", "B2": "Ada"}},
	)
	rep, err = o.Extract(context.Background(), 0, "Quarter 1", book)
	require.NoError(t, err)

	// Sheets follow the index; cells follow the sheet's row-major order.
	keys := make([]string, len(rep.Values))
	for i, v := range rep.Values {
		keys[i] = v.Key
	}
	assert.Equal(t, []string{"greeting", "owner", "budget"}, keys)
	assert.Equal(t, "1200", rep.Values[2].Value)
	assert.Equal(t, "Quarter 1", rep.Datamap.Name)
}

func TestExtractByID(t *testing.T) {
	o, _ := newOrchestrator(t)
	rep, err := o.Import(context.Background(), testutil.WriteDefinition(t, header, "greeting,Intro,A1"), "", false)
	require.NoError(t, err)
	assert.Equal(t, "New datamap", rep.Datamap.Name)

	book := testutil.WriteWorkbook(t, testutil.Sheet{Name: "Intro", Cells: map[string]any{"A1": "hi"}})
	got, err := o.Extract(context.Background(), rep.Datamap.ID, "", book)
	require.NoError(t, err)
	require.Len(t, got.Values, 1)
	assert.Equal(t, rep.Datamap.ID, got.Values[0].DatamapID)
}

func TestRun_DuplicateLocationLeavesStoreUntouched(t *testing.T) {
	o, st := newOrchestrator(t)
	ctx := context.Background()
	_, err := o.Import(ctx, testutil.WriteDefinition(t, header, "keep,Intro,A1"), "keep", false)
	require.NoError(t, err)

	def := testutil.WriteDefinition(t, header, "k1,Intro,A1", "k2,Intro,A1")
	rep, err := o.Run(ctx, extract.Request{DefinitionPath: def, Name: "dup", Reset: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDuplicateLocation)
	assert.Equal(t, extract.StageIndexBuilt, stageOf(t, err))
	assert.Equal(t, extract.StageFailed, rep.Stage)
	assert.Nil(t, rep.Datamap)

	var se *apperr.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Accepted)

	list, err := st.ListDatamaps(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "reset must roll back with the failed import")
	assert.Equal(t, "keep", list[0].Name)
}

func TestRun_MalformedRowsReported(t *testing.T) {
	o, st := newOrchestrator(t)
	def := testutil.WriteDefinition(t, header, "a,b", "greeting,Intro,A1", "", "x,y,z,w")

	rep, err := o.Import(context.Background(), def, "partial", false)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, 2, rep.Rejected)
	require.Len(t, rep.Diagnostics, 2)
	assert.ErrorIs(t, rep.Diagnostics[0], apperr.ErrMalformedRecord)

	lines, err := st.Lines(context.Background(), rep.Datamap.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "greeting", lines[0].Key)
}

func TestRun_OverwriteKeepsOnlySecondImport(t *testing.T) {
	o, st := newOrchestrator(t)
	ctx := context.Background()

	_, err := o.Import(ctx, testutil.WriteDefinition(t, header, "a,S,A1", "b,S,B1"), "X", true)
	require.NoError(t, err)
	rep, err := o.Import(ctx, testutil.WriteDefinition(t, header, "c,T,C3"), "X", true)
	require.NoError(t, err)

	list, err := st.ListDatamaps(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].LineCount)

	lines, err := st.Lines(ctx, rep.Datamap.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "c", lines[0].Key)
}

func TestRun_ZeroMatches(t *testing.T) {
	o, st := newOrchestrator(t)
	def := testutil.WriteDefinition(t, header, "greeting,Intro,Z99")
	book := testutil.WriteWorkbook(t, testutil.Sheet{Name: "Intro", Cells: map[string]any{"A1": "hello"}})

	rep, err := o.Run(context.Background(), extract.Request{DefinitionPath: def, WorkbookPath: book})
	require.NoError(t, err)
	assert.Equal(t, extract.StageResultsCommitted, rep.Stage)
	assert.Empty(t, rep.Values)

	runs, err := st.ListRuns(context.Background(), rep.Datamap.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun_EmptyDefinitionIsLegal(t *testing.T) {
	o, _ := newOrchestrator(t)
	rep, err := o.Import(context.Background(), testutil.WriteDefinition(t, header), "empty", false)
	require.NoError(t, err)
	assert.Zero(t, rep.Accepted)
	assert.NotZero(t, rep.Datamap.ID)
}

func TestRun_MissingSheetIsSkipped(t *testing.T) {
	o, _ := newOrchestrator(t)
	def := testutil.WriteDefinition(t, header, "greeting,Intro,A1", "budget,Finance,C7")
	book := testutil.WriteWorkbook(t, testutil.Sheet{Name: "Intro", Cells: map[string]any{"A1": "hello"}})

	rep, err := o.Run(context.Background(), extract.Request{DefinitionPath: def, WorkbookPath: book})
	require.NoError(t, err)
	assert.Equal(t, []string{"Finance"}, rep.SheetsMissing)
	assert.Equal(t, []string{"Intro"}, rep.SheetsVisited)
	assert.Len(t, rep.Values, 1)
}

func TestRun_UnreadableWorkbookRollsBackDefinition(t *testing.T) {
	o, st := newOrchestrator(t)
	def := testutil.WriteDefinition(t, header, "greeting,Intro,A1")

	_, err := o.Run(context.Background(), extract.Request{
		DefinitionPath: def,
		WorkbookPath:   filepath.Join(t.TempDir(), "missing.xlsx"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSourceUnreadable)
	assert.Equal(t, extract.StageTraversing, stageOf(t, err))

	list, err := st.ListDatamaps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRun_UnreadableDefinition(t *testing.T) {
	o, _ := newOrchestrator(t)
	_, err := o.Import(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "", false)
	assert.ErrorIs(t, err, apperr.ErrSourceUnreadable)
	assert.Equal(t, extract.StageDefinitionLoaded, stageOf(t, err))
}

func TestRun_DefinitionReader(t *testing.T) {
	o, _ := newOrchestrator(t)
	rep, err := o.Run(context.Background(), extract.Request{
		Definition: strings.NewReader("key,sheet,cellref\nowner,Intro,b2\n"),
		Name:       "from reader",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Accepted)
}

func TestRun_SchemaMissing(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	o := extract.New(st, workbook.Opener(workbook.Options{}), nil)

	_, err = o.Import(context.Background(), testutil.WriteDefinition(t, header, "a,S,A1"), "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSchemaMissing)
	assert.Equal(t, extract.StageDefinitionPersisted, stageOf(t, err))
	assert.Contains(t, err.Error(), "--initial")

	rep, err := o.Import(context.Background(), testutil.WriteDefinition(t, header, "a,S,A1"), "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Accepted)
}

func TestRun_NothingToDo(t *testing.T) {
	o, _ := newOrchestrator(t)
	_, err := o.Run(context.Background(), extract.Request{})
	assert.ErrorIs(t, err, extract.ErrNothingToDo)
}

func TestExtract_UnknownDatamap(t *testing.T) {
	o, _ := newOrchestrator(t)
	book := testutil.WriteWorkbook(t, testutil.Sheet{Name: "Intro"})

	_, err := o.Extract(context.Background(), 0, "ghost", book)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = o.Extract(context.Background(), 42, "", book)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = o.Extract(context.Background(), 0, "", book)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// fakeBook serves fixed cells and calls onCell after each one is produced.
type fakeBook struct {
	sheets []string
	cells  map[string][]extract.Cell
	onCell func()
	err    error
}

func (b *fakeBook) Sheets() []string { return b.sheets }
func (b *fakeBook) Close() error     { return nil }
func (b *fakeBook) Cells(sheet string) (extract.CellCursor, error) {
	return &fakeCursor{cells: b.cells[sheet], onCell: b.onCell, err: b.err, pos: -1}, nil
}

type fakeCursor struct {
	cells  []extract.Cell
	pos    int
	onCell func()
	err    error
}

func (c *fakeCursor) Next() bool {
	if c.pos+1 >= len(c.cells) {
		return false
	}
	c.pos++
	if c.onCell != nil {
		c.onCell()
	}
	return true
}
func (c *fakeCursor) Cell() extract.Cell { return c.cells[c.pos] }
func (c *fakeCursor) Err() error         { return c.err }
func (c *fakeCursor) Close() error       { return nil }

func fakeOpener(b *fakeBook) extract.WorkbookOpener {
	return func(string) (extract.Workbook, error) { return b, nil }
}

// placeholder gives the checksum something to read.
func placeholder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o644))
	return path
}

func TestRun_CancelledDuringTraversal(t *testing.T) {
	st := testutil.TestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	book := &fakeBook{
		sheets: []string{"Intro"},
		cells: map[string][]extract.Cell{"Intro": {
			{Sheet: "Intro", Row: 1, Col: 1, Ref: "A1", Value: "hello"},
			{Sheet: "Intro", Row: 1, Col: 2, Ref: "B1", Value: "world"},
		}},
		onCell: cancel,
	}
	o := extract.New(st, fakeOpener(book), nil)

	def := testutil.WriteDefinition(t, header, "greeting,Intro,A1")
	_, err := o.Run(ctx, extract.Request{DefinitionPath: def, WorkbookPath: placeholder(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, extract.StageTraversing, stageOf(t, err))

	list, err := st.ListDatamaps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "cancellation before commit leaves no durable state")
}

func TestRun_CursorErrorFailsRun(t *testing.T) {
	o0, st := newOrchestrator(t)
	rep, err := o0.Import(context.Background(), testutil.WriteDefinition(t, header, "greeting,Intro,A1"), "X", false)
	require.NoError(t, err)

	book := &fakeBook{
		sheets: []string{"Intro"},
		cells:  map[string][]extract.Cell{"Intro": {{Sheet: "Intro", Row: 1, Col: 1, Ref: "A1", Value: "hello"}}},
		err:    errors.New("corrupt row"),
	}
	o := extract.New(st, fakeOpener(book), nil)
	_, err = o.Extract(context.Background(), rep.Datamap.ID, "", placeholder(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt row")

	runs, err := st.ListRuns(context.Background(), rep.Datamap.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_CaseSensitiveMatch(t *testing.T) {
	st := testutil.TestStore(t)
	book := &fakeBook{
		sheets: []string{"intro", "Intro"},
		cells: map[string][]extract.Cell{
			"intro": {{Sheet: "intro", Row: 1, Col: 1, Ref: "A1", Value: "lower"}},
			"Intro": {{Sheet: "Intro", Row: 1, Col: 1, Ref: "A1", Value: "upper"}},
		},
	}
	o := extract.New(st, fakeOpener(book), nil)

	def := testutil.WriteDefinition(t, header, "greeting,Intro,a1")
	rep, err := o.Run(context.Background(), extract.Request{DefinitionPath: def, WorkbookPath: placeholder(t)})
	require.NoError(t, err)
	require.Len(t, rep.Values, 1)
	assert.Equal(t, "upper", rep.Values[0].Value)
}
