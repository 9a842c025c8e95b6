package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/helioscrm/walink/internal/instances"
	"github.com/helioscrm/walink/internal/provider"
)

type fakeSource struct {
	statuses []provider.InstanceStatus
	err      error
}

func (s *fakeSource) FetchStatuses(ctx context.Context, ids []string) ([]provider.InstanceStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.statuses, nil
}

func testStore(t *testing.T) *instances.Store {
	t.Helper()
	store, err := instances.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunOnceUpsertsSnapshot(t *testing.T) {
	store := testStore(t)
	source := &fakeSource{statuses: []provider.InstanceStatus{
		{InstanceID: "a", Status: "open"},
		{InstanceID: "b", Status: "close"},
	}}
	r := New(source, store, "", slog.New(slog.DiscardHandler))

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	rec, err := store.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "open" || rec.StatusSource != "reconcile" {
		t.Errorf("record = %+v, want status open via reconcile", rec)
	}

	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestRunOnceOverwritesDriftedStatus(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	if err := store.SetStatus(ctx, "a", "connected", "push"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	source := &fakeSource{statuses: []provider.InstanceStatus{{InstanceID: "a", Status: "close"}}}
	r := New(source, store, "", slog.New(slog.DiscardHandler))
	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	rec, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "close" {
		t.Errorf("status = %q, want close", rec.Status)
	}
}

func TestRunOncePropagatesSnapshotError(t *testing.T) {
	store := testStore(t)
	source := &fakeSource{err: errors.New("snapshot unavailable")}
	r := New(source, store, "", slog.New(slog.DiscardHandler))

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	store := testStore(t)
	r := New(&fakeSource{}, store, "not a cron expr", slog.New(slog.DiscardHandler))
	if err := r.Start(); err == nil {
		r.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}
