package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	thandi = types.ContactResult{
		RunID:    "run-1",
		Name:     "Thandi",
		Position: 0,
		Status:   types.ContactDone,
		Records: []types.MessageRecord{
			{Header: "[09:14, 3/1/2025] Thandi: ", Text: "Morning!"},
			{
				Reply:  &types.Reply{Sender: "Thandi", QuotedText: "Morning!"},
				Header: "[09:20, 3/1/2025] Sipho: ",
				Text:   "Yes",
			},
			{Header: "[09:31, None] Thandi:", Media: types.MediaImage},
			{Reply: &types.Reply{Sender: "Sipho", IsMedia: true}, Media: types.MediaVideo},
		},
		RowErrors:  1,
		StartedAt:  t0,
		FinishedAt: t0.Add(time.Minute),
	}
	lerato = types.ContactResult{
		RunID:      "run-1",
		Name:       "Lerato 🌻",
		Position:   1,
		Status:     types.ContactFailed,
		Err:        errors.New("whatsapp: contact not found"),
		StartedAt:  t0.Add(time.Minute),
		FinishedAt: t0.Add(2 * time.Minute),
	}
	sipho = types.ContactResult{
		RunID:    "run-1",
		Name:     "Sipho",
		Position: 2,
		Status:   types.ContactDone,
	}
)

func openArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func runThrough(t *testing.T, s Sink) {
	t.Helper()
	ctx := context.Background()
	run := Run{ID: "run-1", StartedAt: t0}
	require.NoError(t, s.Begin(ctx, run))
	for _, res := range []types.ContactResult{thandi, lerato, sipho} {
		require.NoError(t, s.Put(ctx, res))
	}
	run.FinishedAt = t0.Add(3 * time.Minute)
	run.Contacts, run.Failed, run.Messages = 3, 1, 4
	require.NoError(t, s.Finish(ctx, run))
}

func TestJSONExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "messages.json")
	runThrough(t, NewJSONExporter(path, 0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		[
			[null, null, false, "[09:14, 3/1/2025] Thandi: ", "Morning!", false, false, false],
			["Thandi", "Morning!", false, "[09:20, 3/1/2025] Sipho: ", "Yes", false, false, false],
			[null, null, false, "[09:31, None] Thandi:", null, true, false, false],
			["Sipho", null, true, null, null, false, false, true]
		],
		[]
	]`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestJSONExporter_EmptyRunAndIndent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	e := NewJSONExporter(path, 2)
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, Run{ID: "r"}))
	require.NoError(t, e.Finish(ctx, Run{ID: "r"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
	assert.Equal(t, path, e.Path())
}

func TestArchive(t *testing.T) {
	a := openArchive(t)
	runThrough(t, a)
	ctx := context.Background()

	s, err := a.Summary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Run.Contacts)
	assert.Equal(t, 1, s.Run.Failed)
	assert.Equal(t, 4, s.Run.Messages)
	assert.True(t, s.Run.StartedAt.Equal(t0))
	assert.True(t, s.Run.FinishedAt.Equal(t0.Add(3*time.Minute)))

	want := []ContactSummary{
		{Name: "Thandi", Position: 0, Status: types.ContactDone, Messages: 4, RowErrors: 1},
		{Name: "Lerato 🌻", Position: 1, Status: types.ContactFailed, Err: "whatsapp: contact not found"},
		{Name: "Sipho", Position: 2, Status: types.ContactDone},
	}
	if diff := cmp.Diff(want, s.Contacts); diff != "" {
		t.Errorf("contacts mismatch (-want +got):\n%s", diff)
	}

	got, err := a.Messages(ctx, "run-1", "Thandi")
	require.NoError(t, err)
	if diff := cmp.Diff(thandi.Records, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	runs, err := a.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	_, err = a.Summary(ctx, "missing")
	assert.Error(t, err)
}

func TestArchive_PutIsIdempotent(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	require.NoError(t, a.Begin(ctx, Run{ID: "run-1", StartedAt: t0}))
	require.NoError(t, a.Put(ctx, thandi))

	shorter := thandi
	shorter.Records = thandi.Records[:1]
	require.NoError(t, a.Put(ctx, shorter))

	got, err := a.Messages(ctx, "run-1", "Thandi")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestArchive_ExportReplaysRun(t *testing.T) {
	a := openArchive(t)
	runThrough(t, a)

	direct := filepath.Join(t.TempDir(), "direct.json")
	runThrough(t, NewJSONExporter(direct, 0))
	replayed := filepath.Join(t.TempDir(), "replayed.json")
	require.NoError(t, a.Export(context.Background(), "run-1", NewJSONExporter(replayed, 0)))

	want, err := os.ReadFile(direct)
	require.NoError(t, err)
	got, err := os.ReadFile(replayed)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestMigrations_FreshArchive(t *testing.T) {
	a := openArchive(t)
	v, err := GetSchemaVersion(a.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
	assert.True(t, columnExists(a.db, "contacts", "row_errors"))

	// Reopening an up-to-date archive applies nothing.
	require.NoError(t, RunMigrations(a.db))
}

func TestMigrations_UpgradesV1Archive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE runs (id TEXT PRIMARY KEY, started_at DATETIME NOT NULL, finished_at DATETIME,
			contacts INTEGER NOT NULL DEFAULT 0, failed INTEGER NOT NULL DEFAULT 0, messages INTEGER NOT NULL DEFAULT 0);
		CREATE TABLE contacts (run_id TEXT NOT NULL, name TEXT NOT NULL, position INTEGER NOT NULL,
			status TEXT NOT NULL, error TEXT, message_count INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME, finished_at DATETIME, PRIMARY KEY (run_id, name));
		INSERT INTO runs (id, started_at) VALUES ('old', '2024-01-01 00:00:00');
		INSERT INTO contacts (run_id, name, position, status) VALUES ('old', 'Sipho', 0, 'done');
	`)
	require.NoError(t, err)
	require.False(t, columnExists(db, "contacts", "row_errors"))
	require.NoError(t, db.Close())

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	s, err := a.Summary(context.Background(), "old")
	require.NoError(t, err)
	require.Len(t, s.Contacts, 1)
	assert.Equal(t, 0, s.Contacts[0].RowErrors)

	v, err := GetSchemaVersion(a.db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrations_RejectsNewerArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenArchive(path)
	assert.ErrorContains(t, err, "newer than supported")
}

type recordingSink struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingSink) Begin(context.Context, Run) error { return nil }

func (r *recordingSink) Put(_ context.Context, res types.ContactResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, res.Name)
	return r.err
}

func (r *recordingSink) Finish(context.Context, Run) error { return r.err }

func TestMultiSink(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("disk full")}
	m := NewMultiSink(ok, nil, bad)
	ctx := context.Background()

	require.NoError(t, m.Begin(ctx, Run{ID: "r"}))
	err := m.Put(ctx, thandi)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, []string{"Thandi"}, ok.names)
	assert.Equal(t, []string{"Thandi"}, bad.names)
	assert.Error(t, m.Finish(ctx, Run{ID: "r"}))
}

func TestMultiSink_Empty(t *testing.T) {
	m := NewMultiSink()
	assert.NoError(t, m.Put(context.Background(), thandi))
}
