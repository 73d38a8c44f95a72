package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/crashmap/internal/models"
)

// field is a canonical column of the collision schema.
type field int

const (
	fieldDate field = iota
	fieldTime
	fieldDateTime
	fieldLatitude
	fieldLongitude
	fieldPersons
	fieldPedestrians
	fieldCyclists
	fieldMotorists
	fieldStreet
	numFields
)

var fieldNames = [numFields]string{
	"crash_date", "crash_time", "date_time", "latitude", "longitude",
	"injured_persons", "injured_pedestrians", "injured_cyclists", "injured_motorists",
	"on_street_name",
}

// columnAliases maps normalised header names to schema fields.
// Both the reduced dashboard export and the full open-data export are accepted.
var columnAliases = map[string]field{
	"crash_date":                    fieldDate,
	"crash_time":                    fieldTime,
	"date_time":                     fieldDateTime,
	"crash_date_crash_time":         fieldDateTime,
	"timestamp":                     fieldDateTime,
	"latitude":                      fieldLatitude,
	"longitude":                     fieldLongitude,
	"injured_persons":               fieldPersons,
	"number_of_persons_injured":     fieldPersons,
	"injured_pedestrians":           fieldPedestrians,
	"number_of_pedestrians_injured": fieldPedestrians,
	"injured_cyclists":              fieldCyclists,
	"number_of_cyclist_injured":     fieldCyclists,
	"number_of_cyclists_injured":    fieldCyclists,
	"injured_motorists":             fieldMotorists,
	"number_of_motorist_injured":    fieldMotorists,
	"number_of_motorists_injured":   fieldMotorists,
	"on_street_name":                fieldStreet,
}

var (
	dateLayouts     = []string{"01/02/2006", "1/2/2006", "2006-01-02", "2006-01-02T15:04:05.000", time.RFC3339Nano}
	clockLayouts    = []string{"15:04", "15:04:05", "15:04:05.999999"}
	dateTimeLayouts = []string{
		"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05",
		"01/02/2006 15:04", "01/02/2006 15:04:05", time.RFC3339Nano,
	}
)

// normalizeHeader lower-cases a header and folds separators to underscores,
// so "CRASH DATE", "crash_date" and "Crash Date" all match.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "/", "_", "-", "_").Replace(h)
}

// columnMap records, for each schema field, the index of its column (-1 when absent).
type columnMap [numFields]int

// mapColumns builds the column map from a header row.
// Unknown columns are ignored; the first occurrence of an alias wins.
func mapColumns(headers []string) (columnMap, error) {
	var m columnMap
	for i := range m {
		m[i] = -1
	}
	for i, h := range headers {
		f, ok := columnAliases[normalizeHeader(h)]
		if ok && m[f] == -1 {
			m[f] = i
		}
	}

	var missing []string
	if m[fieldDateTime] == -1 {
		if m[fieldDate] == -1 {
			missing = append(missing, fieldNames[fieldDate])
		}
		if m[fieldTime] == -1 {
			missing = append(missing, fieldNames[fieldTime])
		}
	}
	for _, f := range []field{fieldLatitude, fieldLongitude, fieldPersons, fieldPedestrians, fieldCyclists, fieldMotorists} {
		if m[f] == -1 {
			missing = append(missing, fieldNames[f])
		}
	}
	if len(missing) > 0 {
		return m, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return m, nil
}

// value returns the trimmed cell for f, or "" when the column is absent or short.
func (m *columnMap) value(row []string, f field) string {
	i := m[f]
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseRow converts one source row into a record.
// Errors wrap ErrMissingCoordinate or ErrMalformedRecord.
func (m *columnMap) parseRow(row []string) (models.CollisionRecord, error) {
	var rec models.CollisionRecord

	lat, lon := m.value(row, fieldLatitude), m.value(row, fieldLongitude)
	if isMissing(lat) || isMissing(lon) {
		return rec, ErrMissingCoordinate
	}

	ts, err := m.timestamp(row)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	rec.Timestamp = ts

	if rec.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return rec, fmt.Errorf("%w: latitude %q", ErrMalformedRecord, lat)
	}
	if rec.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
		return rec, fmt.Errorf("%w: longitude %q", ErrMalformedRecord, lon)
	}

	counts := []struct {
		f   field
		dst *int
	}{
		{fieldPersons, &rec.InjuredPersons},
		{fieldPedestrians, &rec.InjuredPedestrians},
		{fieldCyclists, &rec.InjuredCyclists},
		{fieldMotorists, &rec.InjuredMotorists},
	}
	for _, c := range counts {
		n, err := parseCount(m.value(row, c.f))
		if err != nil {
			return rec, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, fieldNames[c.f], err)
		}
		*c.dst = n
	}

	rec.OnStreetName = m.value(row, fieldStreet)

	if err := rec.Validate(); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return rec, nil
}

// isMissing treats empty cells and NaN spellings as absent coordinates.
func isMissing(s string) bool {
	return s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null")
}

func (m *columnMap) timestamp(row []string) (time.Time, error) {
	if m[fieldDateTime] >= 0 {
		if s := m.value(row, fieldDateTime); s != "" {
			t, err := parseAny(dateTimeLayouts, s)
			if err != nil {
				return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
			}
			return truncateToMinute(t), nil
		}
		if m[fieldDate] == -1 {
			return time.Time{}, fmt.Errorf("timestamp is empty")
		}
	}

	ds, cs := m.value(row, fieldDate), m.value(row, fieldTime)
	d, err := parseAny(dateLayouts, ds)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", ds, err)
	}
	c, err := parseAny(clockLayouts, cs)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: %w", cs, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, time.UTC), nil
}

func truncateToMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func parseAny(layouts []string, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty value")
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseCount reads a non-negative count. Empty cells count as zero and
// integral floats such as "2.0" (pandas exports) are accepted. Counts above
// math.MaxInt32 are rejected so the result does not depend on int width.
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative count %d", n)
		}
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("count %d out of range", n)
		}
		return int(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not a count: %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative count %q", s)
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("count %q out of range", s)
	}
	return int(f), nil
}
