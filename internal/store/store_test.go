package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/routecodex/routecodex/internal/snapshot"
)

func openCoreTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if st.Path() != path {
		t.Errorf("Path: got %q, want %q", st.Path(), path)
	}
	if st.Writer() == nil {
		t.Error("Writer is nil")
	}
	if st.Reader() == nil {
		t.Error("Reader is nil")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	st.Close()
}

func TestPing(t *testing.T) {
	st := openCoreTestStore(t)
	if err := st.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestWALMode(t *testing.T) {
	st := openCoreTestStore(t)

	var mode string
	err := st.Writer().QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want %q", mode, "wal")
	}
}

func TestMigrations(t *testing.T) {
	st := openCoreTestStore(t)

	var version int
	err := st.Writer().QueryRow("SELECT MAX(version) FROM migrations").Scan(&version)
	if err != nil {
		t.Fatalf("query migration version: %v", err)
	}

	expected := len(migrations)
	if version != expected {
		t.Errorf("migration version: got %d, want %d", version, expected)
	}
}

func TestInsertSnapshot_ListByRequestID(t *testing.T) {
	st := openCoreTestStore(t)

	rec := snapshot.Record{
		Phase:           snapshot.PhaseProviderRequest,
		RequestID:       "req-1",
		ClientRequestID: "client-1",
		ProviderKey:     "openai-chat.gpt-4o.default",
		Endpoint:        "/v1/chat/completions",
		URL:             "https://api.openai.com/v1/chat/completions",
		Headers:         map[string]string{"Authorization": "Bearer sk-***"},
		Body:            `{"model":"gpt-4o"}`,
		Timestamp:       time.Now(),
	}
	id, err := st.InsertSnapshot(rec)
	if err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}
	if id == 0 {
		t.Fatal("InsertSnapshot: expected a non-zero row id")
	}

	rows, err := st.ListSnapshotsByRequestID("req-1")
	if err != nil {
		t.Fatalf("ListSnapshotsByRequestID: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.Phase != string(snapshot.PhaseProviderRequest) {
		t.Errorf("Phase: got %q, want %q", got.Phase, snapshot.PhaseProviderRequest)
	}
	if got.ProviderKey != rec.ProviderKey {
		t.Errorf("ProviderKey: got %q, want %q", got.ProviderKey, rec.ProviderKey)
	}
	if got.Headers["Authorization"] != "Bearer sk-***" {
		t.Errorf("Headers: got %v", got.Headers)
	}
}

func TestListSnapshotsByRequestID_OrdersByInsertion(t *testing.T) {
	st := openCoreTestStore(t)

	for _, phase := range []snapshot.Phase{
		snapshot.PhaseClientRequest,
		snapshot.PhaseProviderRequest,
		snapshot.PhaseProviderResponse,
	} {
		if _, err := st.InsertSnapshot(snapshot.Record{Phase: phase, RequestID: "req-ordered", Timestamp: time.Now()}); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}

	rows, err := st.ListSnapshotsByRequestID("req-ordered")
	if err != nil {
		t.Fatalf("ListSnapshotsByRequestID: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{
		string(snapshot.PhaseClientRequest),
		string(snapshot.PhaseProviderRequest),
		string(snapshot.PhaseProviderResponse),
	}
	for i, w := range want {
		if rows[i].Phase != w {
			t.Errorf("row %d: got phase %q, want %q", i, rows[i].Phase, w)
		}
	}
}

func TestCountSnapshots(t *testing.T) {
	st := openCoreTestStore(t)

	if n, err := st.CountSnapshots(); err != nil || n != 0 {
		t.Fatalf("CountSnapshots before insert: n=%d err=%v", n, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := st.InsertSnapshot(snapshot.Record{Phase: snapshot.PhaseHTTPRequest, Timestamp: time.Now()}); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}

	n, err := st.CountSnapshots()
	if err != nil {
		t.Fatalf("CountSnapshots: %v", err)
	}
	if n != 3 {
		t.Errorf("CountSnapshots: got %d, want 3", n)
	}
}

func TestPrune_RemovesOldSnapshotsOnly(t *testing.T) {
	st := openCoreTestStore(t)

	old := snapshot.Record{Phase: snapshot.PhaseHTTPRequest, RequestID: "old", Timestamp: time.Now().AddDate(0, 0, -10)}
	recent := snapshot.Record{Phase: snapshot.PhaseHTTPRequest, RequestID: "recent", Timestamp: time.Now()}
	if _, err := st.InsertSnapshot(old); err != nil {
		t.Fatalf("InsertSnapshot(old): %v", err)
	}
	if _, err := st.InsertSnapshot(recent); err != nil {
		t.Fatalf("InsertSnapshot(recent): %v", err)
	}

	n, err := st.Prune(1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("Prune: deleted %d rows, want 1", n)
	}

	rows, err := st.ListSnapshotsByRequestID("recent")
	if err != nil {
		t.Fatalf("ListSnapshotsByRequestID: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected the recent snapshot to survive pruning, got %d rows", len(rows))
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	st := openCoreTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := st.InsertSnapshot(snapshot.Record{
				Phase:     snapshot.PhaseHTTPRequest,
				RequestID: "concurrent",
				Timestamp: time.Now(),
			})
			if err != nil {
				t.Errorf("InsertSnapshot(%d): %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := st.ListSnapshotsByRequestID("concurrent")
	if err != nil {
		t.Fatalf("ListSnapshotsByRequestID: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("expected 10 rows, got %d", len(rows))
	}
}

func TestSnapshotSink_WritesThroughToStore(t *testing.T) {
	st := openCoreTestStore(t)
	sink := SnapshotSink{Store: st}

	sink.Write(snapshot.Record{Phase: snapshot.PhaseProviderError, RequestID: "sink-req", Err: "boom", Timestamp: time.Now()})

	rows, err := st.ListSnapshotsByRequestID("sink-req")
	if err != nil {
		t.Fatalf("ListSnapshotsByRequestID: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Err != "boom" {
		t.Errorf("Err: got %q, want %q", rows[0].Err, "boom")
	}
}

func TestSnapshotSink_NilStoreDoesNotPanic(t *testing.T) {
	sink := SnapshotSink{}
	sink.Write(snapshot.Record{Phase: snapshot.PhaseHTTPRequest})
}
