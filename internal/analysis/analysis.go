// Package analysis answers the collision dashboard's questions over a snapshot.
//
// The package-level functions are pure: they take a record set and parameters,
// never modify their input, and return freshly allocated results. They hold no
// state, so they may run concurrently over the same snapshot.
//
//	FilterByHour        records in one hour of the day
//	FilterByMinInjured  records with at least N injured persons
//	MinuteHistogram     60 per-minute counts of an hour-filtered set
//	HexBins             hexagon density bins of a set
//	TopStreets          records ranked by one injury class
//
// Analyzer binds these functions to a storage.Store, applies configuration
// defaults and the empty-set centre fallback, and optionally memoises results
// in a querycache keyed by the full parameter tuple.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rewired-gh/crashmap/internal/logger"
	"github.com/rewired-gh/crashmap/internal/models"
	"github.com/rewired-gh/crashmap/internal/querycache"
	"github.com/rewired-gh/crashmap/internal/storage"
)

// ErrInvalidArgument is wrapped by every parameter validation error.
var ErrInvalidArgument = errors.New("invalid argument")

// Centre fallback modes for an empty hour.
const (
	FallbackSnapshot = "snapshot"
	FallbackFixed    = "fixed"
)

// DefaultCenter is used when no record provides a centre (lower Manhattan).
var DefaultCenter = models.GeoPoint{Lat: 40.7128, Lon: -74.0060}

func checkHour(hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour %d outside [0,23]", ErrInvalidArgument, hour)
	}
	return nil
}

func checkThreshold(threshold int) error {
	if threshold < 0 {
		return fmt.Errorf("%w: injured threshold %d is negative", ErrInvalidArgument, threshold)
	}
	return nil
}

// Options configures an Analyzer. Zero values select defaults.
type Options struct {
	RadiusMeters   float64
	TopK           int
	CenterFallback string // FallbackSnapshot or FallbackFixed
	FallbackCenter *models.GeoPoint
	Cache          *querycache.Cache
}

// Analyzer runs queries against one snapshot
type Analyzer struct {
	store    *storage.Store
	cache    *querycache.Cache
	tiling   Tiling
	topK     int
	fallback string
	fixed    models.GeoPoint

	centroid    models.GeoPoint
	hasCentroid bool
}

// New creates an Analyzer for store.
func New(store *storage.Store, opts Options) (*Analyzer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidArgument)
	}

	radius := opts.RadiusMeters
	if radius == 0 {
		radius = DefaultHexRadius
	}
	topK := opts.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: top k %d is negative", ErrInvalidArgument, topK)
	}

	fallback := opts.CenterFallback
	switch fallback {
	case "":
		fallback = FallbackSnapshot
	case FallbackSnapshot, FallbackFixed:
	default:
		return nil, fmt.Errorf("%w: center fallback %q", ErrInvalidArgument, fallback)
	}
	fixed := DefaultCenter
	if opts.FallbackCenter != nil {
		fixed = *opts.FallbackCenter
	}

	a := &Analyzer{
		store:    store,
		cache:    opts.Cache,
		topK:     topK,
		fallback: fallback,
		fixed:    fixed,
	}
	a.centroid, a.hasCentroid = Mean(store.Records())

	refLat := fixed.Lat
	if a.hasCentroid {
		refLat = a.centroid.Lat
	}
	tiling, err := NewTiling(radius, refLat)
	if err != nil {
		return nil, err
	}
	a.tiling = tiling

	logger.Debug("Analyzer ready: snapshot=%s records=%d radius=%.0fm ref_lat=%.4f top_k=%d fallback=%s",
		store.ID(), store.Len(), radius, refLat, topK, fallback)
	return a, nil
}

// Store returns the snapshot being queried.
func (a *Analyzer) Store() *storage.Store { return a.store }

// Tiling returns the hexagon tiling used by Hexagons.
func (a *Analyzer) Tiling() Tiling { return a.tiling }

// TopK returns the configured ranking length.
func (a *Analyzer) TopK() int { return a.topK }

// Centroid returns the mean position of the whole snapshot.
func (a *Analyzer) Centroid() (models.GeoPoint, bool) { return a.centroid, a.hasCentroid }

func (a *Analyzer) key(query string) querycache.Key {
	return querycache.Key{Snapshot: a.store.ID(), Query: query}
}

// MapPoints returns the locations of collisions with at least threshold injured persons.
func (a *Analyzer) MapPoints(threshold int) ([]models.MapPoint, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	k := a.key("map")
	k.Threshold = threshold

	points, err := querycache.Do(a.cache, k, func() ([]models.MapPoint, error) {
		filtered, err := FilterByMinInjured(a.store.Records(), threshold)
		if err != nil {
			return nil, err
		}
		return MapPoints(filtered), nil
	})
	return slices.Clone(points), err
}

// Minutes returns the per-minute collision counts for hour.
func (a *Analyzer) Minutes(hour int) ([]models.MinuteCount, error) {
	if err := checkHour(hour); err != nil {
		return nil, err
	}
	k := a.key("minutes")
	k.Hour = hour

	counts, err := querycache.Do(a.cache, k, func() ([]models.MinuteCount, error) {
		filtered, err := FilterByHour(a.store.Records(), hour)
		if err != nil {
			return nil, err
		}
		return MinuteCounts(MinuteHistogram(filtered)), nil
	})
	return slices.Clone(counts), err
}

// Hexagons bins the collisions of hour and picks the initial view centre.
func (a *Analyzer) Hexagons(hour int) (models.HexView, error) {
	if err := checkHour(hour); err != nil {
		return models.HexView{}, err
	}
	k := a.key("hexagons")
	k.Hour = hour
	k.Radius = a.tiling.RadiusMeters()

	view, err := querycache.Do(a.cache, k, func() (models.HexView, error) {
		filtered, err := FilterByHour(a.store.Records(), hour)
		if err != nil {
			return models.HexView{}, err
		}
		center, source := a.center(filtered)
		return models.HexView{
			Hour:         hour,
			RadiusMeters: a.tiling.RadiusMeters(),
			Bins:         HexBins(filtered, a.tiling),
			Center:       center,
			CenterSource: source,
			Collisions:   len(filtered),
		}, nil
	})
	view.Bins = slices.Clone(view.Bins)
	return view, err
}

// center returns the mean of records, falling back per configuration when empty.
func (a *Analyzer) center(records []models.CollisionRecord) (models.GeoPoint, string) {
	if mean, ok := Mean(records); ok && !math.IsNaN(mean.Lat) {
		return mean, models.CenterFiltered
	}
	if a.fallback == FallbackSnapshot && a.hasCentroid {
		return a.centroid, models.CenterSnapshot
	}
	return a.fixed, models.CenterFixed
}

// TopStreets ranks the whole snapshot for class.
func (a *Analyzer) TopStreets(class models.InjuryClass) ([]models.StreetCount, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: injury class %q", ErrInvalidArgument, class)
	}
	k := a.key("streets")
	k.Class = string(class)
	k.K = a.topK

	streets, err := querycache.Do(a.cache, k, func() ([]models.StreetCount, error) {
		return TopStreets(a.store.Records(), class, a.topK)
	})
	return slices.Clone(streets), err
}

// Raw returns the records of hour, for the raw data table. Results are not cached.
func (a *Analyzer) Raw(hour int) ([]models.CollisionRecord, error) {
	return FilterByHour(a.store.Records(), hour)
}
