package analysis

import (
	"github.com/rewired-gh/crashmap/internal/models"
)

// FilterByHour returns the records whose timestamp falls in the given hour of day,
// in their original order. hour must be in [0,23].
func FilterByHour(records []models.CollisionRecord, hour int) ([]models.CollisionRecord, error) {
	if err := checkHour(hour); err != nil {
		return nil, err
	}

	filtered := make([]models.CollisionRecord, 0)
	for i := range records {
		if records[i].Timestamp.Hour() == hour {
			filtered = append(filtered, records[i])
		}
	}
	return filtered, nil
}

// FilterByMinInjured returns the records with at least threshold injured persons,
// in their original order. There is no upper bound: a threshold above the data
// maximum yields an empty result.
func FilterByMinInjured(records []models.CollisionRecord, threshold int) ([]models.CollisionRecord, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	filtered := make([]models.CollisionRecord, 0)
	for i := range records {
		if records[i].InjuredPersons >= threshold {
			filtered = append(filtered, records[i])
		}
	}
	return filtered, nil
}

// MapPoints projects records to the (lat, lon) pairs a map layer plots.
func MapPoints(records []models.CollisionRecord) []models.MapPoint {
	points := make([]models.MapPoint, len(records))
	for i := range records {
		points[i] = models.MapPoint{Lat: records[i].Latitude, Lon: records[i].Longitude}
	}
	return points
}
