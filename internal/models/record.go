// Package models defines the core domain entities for the crashmap application.
// These models represent collision records loaded from the city's crash table and the
// small derived tables that the analysis layer hands to renderers.
// Records include built-in validation so the store only ever holds well-formed rows.
package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// CollisionRecord is one motor vehicle collision.
// Values are immutable once placed in a snapshot.
type CollisionRecord struct {
	Timestamp          time.Time `json:"timestamp"` // CRASH DATE + CRASH TIME, minute precision
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	InjuredPersons     int       `json:"injured_persons"` // total across all classes
	InjuredPedestrians int       `json:"injured_pedestrians"`
	InjuredCyclists    int       `json:"injured_cyclists"`
	InjuredMotorists   int       `json:"injured_motorists"`
	OnStreetName       string    `json:"on_street_name,omitempty"` // empty when the source had none
}

// HasStreet reports whether the record carries a street name.
func (r *CollisionRecord) HasStreet() bool {
	return strings.TrimSpace(r.OnStreetName) != ""
}

// Position returns the record's coordinates.
func (r *CollisionRecord) Position() GeoPoint {
	return GeoPoint{Lat: r.Latitude, Lon: r.Longitude}
}

// Validate checks that all record fields are valid.
// Class counts exceeding InjuredPersons are accepted as they come from the source.
func (r *CollisionRecord) Validate() error {
	if r.Timestamp.IsZero() {
		return errors.New("timestamp must not be empty")
	}
	if math.IsNaN(r.Latitude) || r.Latitude < -90 || r.Latitude > 90 {
		return errors.New("latitude must be between -90 and 90")
	}
	if math.IsNaN(r.Longitude) || r.Longitude < -180 || r.Longitude > 180 {
		return errors.New("longitude must be between -180 and 180")
	}
	if r.InjuredPersons < 0 {
		return errors.New("injured persons must not be negative")
	}
	if r.InjuredPedestrians < 0 {
		return errors.New("injured pedestrians must not be negative")
	}
	if r.InjuredCyclists < 0 {
		return errors.New("injured cyclists must not be negative")
	}
	if r.InjuredMotorists < 0 {
		return errors.New("injured motorists must not be negative")
	}
	return nil
}
