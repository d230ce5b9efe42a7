package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	now := time.Now()

	runs := []Run{
		{Release: "widget", Branch: "main", Host: "203.0.113.10", Mode: "single-container",
			Action: "deploy", ExitCode: 0, Started: now.Add(-time.Minute), Finished: now},
		{Release: "widget", Branch: "main", Host: "203.0.113.10", Mode: "single-container",
			Action: "deploy", ExitCode: 12, Error: "instance widget not running after start",
			Started: now, Finished: now.Add(time.Minute)},
	}
	for _, r := range runs {
		if err := store.Record(r); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}

	got, err := store.Recent(10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	// Newest first.
	if got[0].ExitCode != 12 || got[0].Error == "" {
		t.Errorf("unexpected newest run: %+v", got[0])
	}
	if got[1].ExitCode != 0 {
		t.Errorf("unexpected oldest run: %+v", got[1])
	}
}

func TestRecentLimit(t *testing.T) {
	store := openStore(t)
	for i := 0; i < 5; i++ {
		if err := store.Record(Run{Release: "widget", Branch: "main", Host: "h",
			Mode: "compose-stack", Action: "cleanup",
			Started: time.Now(), Finished: time.Now()}); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}

	got, err := store.Recent(3)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 runs, got %d", len(got))
	}
}
