package instances

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, Record{ID: "crm-01", DisplayName: "Sales", PhoneNumber: "+15550100"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, err := store.Get(ctx, "crm-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.DisplayName != "Sales" || rec.PhoneNumber != "+15550100" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestUpsertPreservesFieldsOnPartialUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, Record{ID: "crm-01", DisplayName: "Sales"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.SetStatus(ctx, "crm-01", "connected", "push"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	rec, err := store.Get(ctx, "crm-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.DisplayName != "Sales" {
		t.Errorf("display name = %q, want Sales (preserved)", rec.DisplayName)
	}
	if rec.Status != "connected" || rec.StatusSource != "push" {
		t.Errorf("status = %q via %q, want connected via push", rec.Status, rec.StatusSource)
	}
}

func TestSetStatusCreatesUnknownInstance(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetStatus(ctx, "crm-02", "open", "reconcile"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	rec, err := store.Get(ctx, "crm-02")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "open" {
		t.Errorf("status = %q, want open", rec.Status)
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := store.Upsert(ctx, Record{ID: id}); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 || records[0].ID != "a" || records[2].ID != "c" {
		t.Errorf("records = %+v, want a,b,c ordered", records)
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete unknown: %v", err)
	}

	records, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records after delete, want 2", len(records))
	}
}
