package models

import "fmt"

// GeoPoint is a WGS84 position.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MapPoint is one location on the injury map.
type MapPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MinuteCount is one bar of the per-minute breakdown.
type MinuteCount struct {
	Minute int `json:"minute"`
	Count  int `json:"count"`
}

// HexBin is an occupied cell of the hexagonal tiling.
type HexBin struct {
	Col    int      `json:"col"`
	Row    int      `json:"row"`
	Center GeoPoint `json:"center"`
	Count  int      `json:"count"`
}

// Where a view centre came from.
const (
	CenterFiltered = "filtered"
	CenterSnapshot = "snapshot"
	CenterFixed    = "fixed"
)

// HexView bundles bins with the position the map should open at.
type HexView struct {
	Hour         int      `json:"hour"`
	RadiusMeters float64  `json:"radius_m"`
	Bins         []HexBin `json:"bins"`
	Center       GeoPoint `json:"center"`
	CenterSource string   `json:"center_source"`
	Collisions   int      `json:"collisions"`
}

// StreetCount is one row of the dangerous-streets ranking.
type StreetCount struct {
	Street string `json:"street"`
	Count  int    `json:"count"`
}

// HourWindow is an hour of the day used for headings like "between 17:00 and 18:00".
type HourWindow int

// String renders the window; hour 23 wraps to 0:00.
func (h HourWindow) String() string {
	return fmt.Sprintf("between %d:00 and %d:00", int(h), (int(h)+1)%24)
}
