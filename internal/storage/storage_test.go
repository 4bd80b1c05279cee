package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eugenenazirov/keyflat/internal/flatten"
)

func newResult(kv ...any) *flatten.Object {
	o := flatten.NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1])
	}
	return o
}

func TestNewMemoryStorageRejectsInvalidCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{0, -1} {
		if _, err := NewMemoryStorage(capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("expected ErrInvalidCapacity for %d, got %v", capacity, err)
		}
	}
}

func TestSaveAssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewMemoryStorage(DefaultCapacity(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.Save(Record{Prefix: "svc", Format: "json", Result: newResult("a.b", 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := ulid.ParseStrict(rec.ID)
	if err != nil {
		t.Fatalf("expected a valid ULID, got %q: %v", rec.ID, err)
	}
	if got := ulid.Time(id.Time()); !got.Equal(now) {
		t.Fatalf("expected ULID timestamp %s, got %s", now, got)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Fatalf("expected CreatedAt %s, got %s", now, rec.CreatedAt)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Prefix != "svc" || got.Format != "json" || got.Result != rec.Result {
		t.Fatalf("stored record does not match saved record: %+v", got)
	}
}

func TestSaveGeneratesIncreasingIDs(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStorage(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var prev string
	for i := 0; i < 5; i++ {
		rec, err := store.Save(Record{Result: newResult("i", i)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.ID <= prev {
			t.Fatalf("expected IDs to increase, got %q after %q", rec.ID, prev)
		}
		prev = rec.ID
	}
}

func TestSaveRejectsMissingResult(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStorage(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Save(Record{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestSaveEvictsOldest(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStorage(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec, err := store.Save(Record{Result: newResult("i", i)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	if store.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", store.Len())
	}
	if _, err := store.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected oldest record to be evicted, got %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := store.Get(id); err != nil {
			t.Fatalf("expected record %s to be present: %v", id, err)
		}
	}
}

func TestSaveWithExistingIDReplaces(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStorage(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Save(Record{ID: "fixed", Result: newResult("v", 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Save(Record{ID: "fixed", Result: newResult("v", 2)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected a single record, got %d", store.Len())
	}
	rec, err := store.Get("fixed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := rec.Result.Get("v"); v != 2 {
		t.Fatalf("expected replaced value 2, got %v", v)
	}
}

func TestGetUnknownID(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStorage(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	store, err := NewMemoryStorage(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			if _, err := store.Save(Record{Result: newResult(fmt.Sprintf("k%d", offset), offset)}); err != nil {
				t.Errorf("Save failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			_ = store.Len()
			if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get returned unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if got := store.Len(); got != 16 {
		t.Fatalf("expected store to be capped at 16, got %d", got)
	}
}
