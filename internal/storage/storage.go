// Package storage holds the in-memory snapshot of collision records.
//
// A Store is built once from a loader's output and is read-only afterwards:
// there are no mutating methods, so any number of goroutines may query it
// without locking. Each Store carries a unique ID that caches use to tell
// snapshots apart.
package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/crashmap/internal/loader"
	"github.com/rewired-gh/crashmap/internal/models"
)

// Store is an immutable, ordered snapshot of collision records
type Store struct {
	id         string
	source     string
	loadedAt   time.Time
	stats      loader.Stats
	records    []models.CollisionRecord
	maxInjured int
}

// New creates a Store from records, preserving their order.
// The slice is copied, so later changes by the caller do not leak in.
func New(records []models.CollisionRecord, source string) (*Store, error) {
	maxInjured := 0
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid record %d: %w", i, err)
		}
		if records[i].InjuredPersons > maxInjured {
			maxInjured = records[i].InjuredPersons
		}
	}

	return &Store{
		id:         uuid.New().String(),
		source:     source,
		loadedAt:   time.Now(),
		records:    slices.Clone(records),
		maxInjured: maxInjured,
	}, nil
}

// Build runs l and wraps the result in a Store.
func Build(ctx context.Context, l loader.Loader) (*Store, error) {
	records, stats, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records from %s: %w", l.Source(), err)
	}
	s, err := New(records, l.Source())
	if err != nil {
		return nil, err
	}
	s.stats = stats
	return s, nil
}

// ID identifies this snapshot.
func (s *Store) ID() string { return s.id }

// Source describes where the records came from.
func (s *Store) Source() string { return s.source }

// LoadedAt is when the snapshot was built.
func (s *Store) LoadedAt() time.Time { return s.loadedAt }

// Stats returns the loader statistics (zero for stores built with New).
func (s *Store) Stats() loader.Stats { return s.stats }

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// MaxInjured is the largest injured-persons count in the snapshot.
func (s *Store) MaxInjured() int { return s.maxInjured }

// Records returns the snapshot in load order. The slice is shared and must not be modified.
func (s *Store) Records() []models.CollisionRecord {
	return s.records[:len(s.records):len(s.records)]
}
