package analysis

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rewired-gh/crashmap/internal/models"
)

// DefaultHexRadius is the hexagon radius in meters used by the collision map.
const DefaultHexRadius = 100.0

// maxMercatorLat is where Web Mercator ends; positions beyond are clamped.
const maxMercatorLat = 85.05112878

// Tiling is a pointy-top hexagonal lattice over Web Mercator.
//
// The radius is given in meters and converted to Mercator units at a fixed
// reference latitude, so the cell of a position depends only on the position
// (for a given tiling), never on which other records are being binned.
// The lattice layout follows d3-hexbin: rows are 1.5r apart and odd rows
// are shifted by half a column.
//
// Cell assignment also follows d3-hexbin, and so matches deck.gl's
// HexagonLayer. Near a row boundary the two candidate centres are compared
// in lattice units (x/dx, y/dy), which weigh the axes differently from ground
// distance. A small share of points (about 2% of uniformly spread ones)
// therefore lands in a cell whose centre is not the nearest on the ground.
type Tiling struct {
	radiusMeters float64
	refLat       float64
	dx, dy       float64
}

// Cell addresses one hexagon of a tiling.
type Cell struct {
	Col int
	Row int
}

// NewTiling creates a tiling with hexagons of radiusMeters at refLat.
func NewTiling(radiusMeters, refLat float64) (Tiling, error) {
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return Tiling{}, fmt.Errorf("%w: hexagon radius %v must be positive", ErrInvalidArgument, radiusMeters)
	}
	if math.IsNaN(refLat) || math.Abs(refLat) >= maxMercatorLat {
		return Tiling{}, fmt.Errorf("%w: reference latitude %v", ErrInvalidArgument, refLat)
	}

	r := radiusMeters / math.Cos(refLat*math.Pi/180)
	return Tiling{
		radiusMeters: radiusMeters,
		refLat:       refLat,
		dx:           2 * r * math.Sin(math.Pi/3),
		dy:           1.5 * r,
	}, nil
}

// RadiusMeters returns the hexagon radius.
func (t Tiling) RadiusMeters() float64 { return t.radiusMeters }

// RefLat returns the latitude at which the radius is exact.
func (t Tiling) RefLat() float64 { return t.refLat }

// Cell returns the hexagon containing p.
func (t Tiling) Cell(p models.GeoPoint) Cell {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	m := project.WGS84.ToMercator(orb.Point{p.Lon, lat})

	py := m[1] / t.dy
	pj := roundHalfUp(py)
	px := m[0]/t.dx - float64(pj&1)/2
	pi := float64(roundHalfUp(px))
	py1 := py - float64(pj)

	// Near a row boundary the candidate centre nearer in lattice units wins.
	if math.Abs(py1)*3 > 1 {
		px1 := px - pi
		pi2 := pi + halfStep(px < pi)
		pj2 := pj + 1
		if py < float64(pj) {
			pj2 = pj - 1
		}
		px2 := px - pi2
		py2 := py - float64(pj2)
		if px1*px1+py1*py1 > px2*px2+py2*py2 {
			if pj&1 == 1 {
				pi = pi2 + 0.5
			} else {
				pi = pi2 - 0.5
			}
			pj = pj2
		}
	}

	return Cell{Col: int(math.Round(pi)), Row: pj}
}

// Center returns the centre of c in WGS84.
func (t Tiling) Center(c Cell) models.GeoPoint {
	x := (float64(c.Col) + float64(c.Row&1)/2) * t.dx
	y := float64(c.Row) * t.dy
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return models.GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
}

func halfStep(negative bool) float64 {
	if negative {
		return -0.5
	}
	return 0.5
}

// roundHalfUp rounds to the nearest integer with halves going up.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// HexBins assigns every record to exactly one cell of t and returns the
// occupied cells in first-seen order. Counts sum to len(records).
func HexBins(records []models.CollisionRecord, t Tiling) []models.HexBin {
	bins := make([]models.HexBin, 0)
	index := make(map[Cell]int)

	for i := range records {
		c := t.Cell(records[i].Position())
		if j, ok := index[c]; ok {
			bins[j].Count++
			continue
		}
		index[c] = len(bins)
		bins = append(bins, models.HexBin{Col: c.Col, Row: c.Row, Center: t.Center(c), Count: 1})
	}
	return bins
}

// Mean returns the average latitude and longitude of records.
// It reports false for an empty set, where the mean is undefined.
func Mean(records []models.CollisionRecord) (models.GeoPoint, bool) {
	if len(records) == 0 {
		return models.GeoPoint{}, false
	}
	var lat, lon float64
	for i := range records {
		lat += records[i].Latitude
		lon += records[i].Longitude
	}
	n := float64(len(records))
	return models.GeoPoint{Lat: lat / n, Lon: lon / n}, true
}
