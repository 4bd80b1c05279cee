package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eugenenazirov/keyflat/internal/flatten"
)

const defaultCapacity = 128

var (
	// ErrNotFound indicates no record exists for the requested ID, or it was evicted.
	ErrNotFound = errors.New("flatten result not found")
	// ErrInvalidCapacity indicates the store capacity is not a positive integer.
	ErrInvalidCapacity = errors.New("store capacity must be a positive integer")
	// ErrInvalidRecord indicates a record without a result was saved.
	ErrInvalidRecord = errors.New("record must carry a flatten result")
)

// Record is a stored flatten result.
type Record struct {
	ID        string
	Prefix    string
	Format    string
	Result    *flatten.Object
	CreatedAt time.Time
}

// Storage keeps recent flatten results addressable by ID.
type Storage interface {
	Save(rec Record) (Record, error)
	Get(id string) (Record, error)
	Len() int
}

// Option configures MemoryStorage.
type Option func(*MemoryStorage)

// WithClock overrides the time source used for CreatedAt and ULID timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStorage) {
		s.clock = clock
	}
}

// MemoryStorage keeps up to capacity records in memory, evicting the oldest
// first. Access is guarded by a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	capacity int
	records  map[string]Record
	order    []string
	entropy  io.Reader
	clock    func() time.Time
}

// NewMemoryStorage creates a store holding at most capacity records.
func NewMemoryStorage(capacity int, opts ...Option) (*MemoryStorage, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	s := &MemoryStorage{
		capacity: capacity,
		records:  make(map[string]Record, capacity),
		order:    make([]string, 0, capacity),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultCapacity returns the capacity used when none is configured.
func DefaultCapacity() int {
	return defaultCapacity
}

// Save stores rec, assigning an ID and CreatedAt when they are empty. The
// result is stored by reference and must not be mutated afterwards.
func (s *MemoryStorage) Save(rec Record) (Record, error) {
	if rec.Result == nil {
		return Record{}, ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	if rec.ID == "" {
		id, err := ulid.New(ulid.Timestamp(rec.CreatedAt), s.entropy)
		if err != nil {
			return Record{}, fmt.Errorf("generate record id: %w", err)
		}
		rec.ID = id.String()
	}

	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldest)
	}

	return rec, nil
}

// Get returns the record stored under id.
func (s *MemoryStorage) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len returns the number of records currently held.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
