// Package report assembles the dashboard's four views into one document.
//
// A Report is what the original page showed for one parameter set: the injury
// map, the hexagon density view for an hour with its per-minute breakdown, and
// the dangerous-streets table. Reports render as aligned text, as JSON, or as
// a Telegram digest (see internal/telegram).
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/crashmap/internal/analysis"
	"github.com/rewired-gh/crashmap/internal/loader"
	"github.com/rewired-gh/crashmap/internal/models"
)

// Params is the dashboard's parameter set.
type Params struct {
	Hour       int
	MinInjured int
	Class      models.InjuryClass
}

// Report holds every derived table for one parameter set and snapshot
type Report struct {
	ID          string    `json:"id"`
	SnapshotID  string    `json:"snapshot_id"`
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`

	Records    int          `json:"records"`
	MaxInjured int          `json:"max_injured"`
	LoadStats  loader.Stats `json:"load_stats"`

	Hour       int                `json:"hour"`
	Window     string             `json:"window"`
	MinInjured int                `json:"min_injured"`
	Class      models.InjuryClass `json:"injury_class"`

	MapPoints []models.MapPoint    `json:"map_points"`
	Minutes   []models.MinuteCount `json:"minutes"`
	Hexagons  models.HexView       `json:"hexagons"`
	Streets   []models.StreetCount `json:"streets"`
}

// Build evaluates the four views concurrently over a's snapshot.
// The first failing query cancels the rest and its error is returned.
func Build(ctx context.Context, a *analysis.Analyzer, p Params) (*Report, error) {
	store := a.Store()
	r := &Report{
		ID:          uuid.New().String(),
		SnapshotID:  store.ID(),
		Source:      store.Source(),
		GeneratedAt: time.Now().UTC(),
		Records:     store.Len(),
		MaxInjured:  store.MaxInjured(),
		LoadStats:   store.Stats(),
		Hour:        p.Hour,
		Window:      models.HourWindow(p.Hour).String(),
		MinInjured:  p.MinInjured,
		Class:       p.Class,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		points, err := a.MapPoints(p.MinInjured)
		if err != nil {
			return fmt.Errorf("failed to compute map points: %w", err)
		}
		r.MapPoints = points
		return ctx.Err()
	})
	g.Go(func() error {
		minutes, err := a.Minutes(p.Hour)
		if err != nil {
			return fmt.Errorf("failed to compute minute breakdown: %w", err)
		}
		r.Minutes = minutes
		return ctx.Err()
	})
	g.Go(func() error {
		view, err := a.Hexagons(p.Hour)
		if err != nil {
			return fmt.Errorf("failed to compute hexagon bins: %w", err)
		}
		r.Hexagons = view
		return ctx.Err()
	})
	g.Go(func() error {
		streets, err := a.TopStreets(p.Class)
		if err != nil {
			return fmt.Errorf("failed to rank streets: %w", err)
		}
		r.Streets = streets
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}
