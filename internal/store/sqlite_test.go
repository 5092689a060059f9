// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers call persistence, filtering, aggregation, and pruning

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.SaveCall(ctx, testCall("c1", "s1", "login", time.Now(), true, "")); err != nil {
		t.Fatalf("SaveCall failed: %v", err)
	}
	first.Close()

	// schema creation and migrations are idempotent
	second, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer second.Close()

	if _, err := second.GetCall(ctx, "c1"); err != nil {
		t.Errorf("GetCall after reopen: %v", err)
	}
}

func TestSaveAndGetCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC)
	rec := &CallRecord{
		ID:        "call-1",
		SessionID: "session-1",
		Operation: "searchObject",
		StartedAt: started,
		Duration:  1500 * time.Microsecond,
		Success:   false,
		ErrorKind: "BackendError",
	}
	if err := store.SaveCall(ctx, rec); err != nil {
		t.Fatalf("SaveCall failed: %v", err)
	}

	got, err := store.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if got.SessionID != rec.SessionID || got.Operation != rec.Operation {
		t.Errorf("got %+v, want %+v", got, rec)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration != rec.Duration {
		t.Errorf("Duration = %v, want %v", got.Duration, rec.Duration)
	}
	if got.Success {
		t.Error("Success should be false")
	}
	if got.ErrorKind != "BackendError" {
		t.Errorf("ErrorKind = %q, want %q", got.ErrorKind, "BackendError")
	}

	if _, err := store.GetCall(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCall(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListCalls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		session := "s1"
		if i%2 == 1 {
			session = "s2"
		}
		rec := testCall(fmt.Sprintf("c%d", i), session, "getDiscovery", base.Add(time.Duration(i)*time.Minute), true, "")
		if err := store.SaveCall(ctx, rec); err != nil {
			t.Fatalf("SaveCall failed: %v", err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		calls, err := store.ListCalls(ctx, CallFilter{})
		if err != nil {
			t.Fatalf("ListCalls failed: %v", err)
		}
		if len(calls) != 5 {
			t.Fatalf("expected 5 calls, got %d", len(calls))
		}
		if calls[0].ID != "c4" || calls[4].ID != "c0" {
			t.Errorf("unexpected order: first=%s last=%s", calls[0].ID, calls[4].ID)
		}
	})

	t.Run("filter by session", func(t *testing.T) {
		s2 := "s2"
		calls, err := store.ListCalls(ctx, CallFilter{SessionID: &s2})
		if err != nil {
			t.Fatalf("ListCalls failed: %v", err)
		}
		if len(calls) != 2 {
			t.Errorf("expected 2 calls for s2, got %d", len(calls))
		}
	})

	t.Run("limit and time window", func(t *testing.T) {
		since := base.Add(90 * time.Second)
		calls, err := store.ListCalls(ctx, CallFilter{Since: &since, Limit: 2})
		if err != nil {
			t.Fatalf("ListCalls failed: %v", err)
		}
		if len(calls) != 2 {
			t.Fatalf("expected 2 calls, got %d", len(calls))
		}
		if calls[0].ID != "c4" || calls[1].ID != "c3" {
			t.Errorf("got %s, %s; want c4, c3", calls[0].ID, calls[1].ID)
		}
	})
}

func TestGetCallStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []*CallRecord{
		testCall("a", "s1", "login", now, true, ""),
		testCall("b", "s1", "searchObject", now, true, ""),
		testCall("c", "s1", "searchObject", now, false, "BackendError"),
		testCall("d", "s2", "searchObject", now, false, "AuthenticationFailed"),
	}
	records[1].Duration = 2 * time.Millisecond
	records[2].Duration = 4 * time.Millisecond
	records[3].Duration = 6 * time.Millisecond
	for _, r := range records {
		if err := store.SaveCall(ctx, r); err != nil {
			t.Fatalf("SaveCall failed: %v", err)
		}
	}

	stats, err := store.GetCallStats(ctx, CallFilter{})
	if err != nil {
		t.Fatalf("GetCallStats failed: %v", err)
	}

	if stats.TotalCalls != 4 || stats.TotalFailures != 2 {
		t.Errorf("totals = %d/%d, want 4/2", stats.TotalCalls, stats.TotalFailures)
	}
	if len(stats.ByOperation) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(stats.ByOperation))
	}
	search := stats.ByOperation[0]
	if search.Operation != "searchObject" || search.Calls != 3 || search.Failures != 2 {
		t.Errorf("searchObject stats = %+v", search)
	}
	if search.AvgDurationMs != 4 || search.MaxDurationMs != 6 {
		t.Errorf("searchObject durations avg=%v max=%v, want 4 and 6", search.AvgDurationMs, search.MaxDurationMs)
	}
	if stats.ByErrorKind["BackendError"] != 1 || stats.ByErrorKind["AuthenticationFailed"] != 1 {
		t.Errorf("ByErrorKind = %v", stats.ByErrorKind)
	}

	s2 := "s2"
	filtered, err := store.GetCallStats(ctx, CallFilter{SessionID: &s2})
	if err != nil {
		t.Fatalf("GetCallStats(filtered) failed: %v", err)
	}
	if filtered.TotalCalls != 1 || len(filtered.ByErrorKind) != 1 {
		t.Errorf("filtered stats = %+v", filtered)
	}
}

func TestGetCallStats_Empty(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.GetCallStats(context.Background(), CallFilter{})
	if err != nil {
		t.Fatalf("GetCallStats failed: %v", err)
	}
	if stats.TotalCalls != 0 || len(stats.ByOperation) != 0 || len(stats.ByErrorKind) != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestPruneCalls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.SaveCall(ctx, testCall("old", "s1", "login", now.Add(-48*time.Hour), true, ""))
	_ = store.SaveCall(ctx, testCall("new", "s1", "login", now, true, ""))

	n, err := store.PruneCalls(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneCalls failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, err := store.GetCall(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old call should be gone, got %v", err)
	}
	if _, err := store.GetCall(ctx, "new"); err != nil {
		t.Errorf("new call should remain: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore(memory) failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveCall(ctx, testCall("m1", "s1", "healthcheck", time.Now(), true, "")); err != nil {
		t.Fatalf("SaveCall failed: %v", err)
	}
	if _, err := store.GetCall(ctx, "m1"); err != nil {
		t.Errorf("GetCall failed: %v", err)
	}
}

func TestMockStoreMatchesSQLite(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	records := []*CallRecord{
		testCall("a", "s1", "login", now.Add(-time.Minute), true, ""),
		testCall("b", "s1", "searchObject", now, false, "BackendError"),
	}

	for name, s := range map[string]CallStore{"sqlite": newTestStore(t), "mock": NewMockStore()} {
		t.Run(name, func(t *testing.T) {
			for _, r := range records {
				if err := s.SaveCall(ctx, r); err != nil {
					t.Fatalf("SaveCall failed: %v", err)
				}
			}
			calls, err := s.ListCalls(ctx, CallFilter{})
			if err != nil {
				t.Fatalf("ListCalls failed: %v", err)
			}
			if len(calls) != 2 || calls[0].ID != "b" {
				t.Errorf("ListCalls = %d calls, first %v", len(calls), calls)
			}
			stats, err := s.GetCallStats(ctx, CallFilter{})
			if err != nil {
				t.Fatalf("GetCallStats failed: %v", err)
			}
			if stats.TotalCalls != 2 || stats.TotalFailures != 1 || stats.ByErrorKind["BackendError"] != 1 {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}

func testCall(id, session, op string, started time.Time, success bool, kind string) *CallRecord {
	return &CallRecord{
		ID:        id,
		SessionID: session,
		Operation: op,
		StartedAt: started,
		Duration:  time.Millisecond,
		Success:   success,
		ErrorKind: kind,
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}
