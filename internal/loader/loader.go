// Package loader reads collision rows from a source and turns them into typed records.
//
// Every source shares one static schema (see schema.go): required columns are
// enforced, unknown columns are ignored, and rows are screened with the same policy.
// Rows without coordinates and rows that cannot be parsed are skipped and counted,
// never handed to the record store.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/crashmap/internal/logger"
	"github.com/rewired-gh/crashmap/internal/models"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the source.
	ErrMissingColumn = errors.New("missing required column")
	// ErrMalformedRecord marks a row whose timestamp or counts cannot be parsed.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrMissingCoordinate marks a row lacking latitude or longitude.
	ErrMissingCoordinate = errors.New("missing coordinate")
)

// DefaultMaxRows mirrors the row cap of the original dashboard.
const DefaultMaxRows = 100000

// maxLoggedSkips bounds per-row debug output for very dirty files.
const maxLoggedSkips = 20

// Loader produces the record set a snapshot is built from.
type Loader interface {
	Load(ctx context.Context) ([]models.CollisionRecord, Stats, error)
	// Source describes where the records come from, for logs and reports.
	Source() string
}

// Stats summarises what happened to the rows read from a source.
// Rows == Loaded + Malformed + MissingCoordinate.
type Stats struct {
	Rows              int `json:"rows"`
	Loaded            int `json:"loaded"`
	Malformed         int `json:"malformed"`
	MissingCoordinate int `json:"missing_coordinate"`
}

// String renders the stats for log lines.
func (s Stats) String() string {
	return fmt.Sprintf("rows=%d loaded=%d malformed=%d missing_coordinate=%d",
		s.Rows, s.Loaded, s.Malformed, s.MissingCoordinate)
}

// collector applies the row policy and accumulates records and stats.
type collector struct {
	columns columnMap
	records []models.CollisionRecord
	stats   Stats
	skipped int
}

func newCollector(headers []string) (*collector, error) {
	cols, err := mapColumns(headers)
	if err != nil {
		return nil, err
	}
	return &collector{columns: cols}, nil
}

// add parses one row; skipped rows are counted, not returned as errors.
func (c *collector) add(line int, row []string) {
	c.stats.Rows++

	rec, err := c.columns.parseRow(row)
	switch {
	case err == nil:
		c.records = append(c.records, rec)
		c.stats.Loaded++
		return
	case errors.Is(err, ErrMissingCoordinate):
		c.stats.MissingCoordinate++
	default:
		c.stats.Malformed++
	}

	c.skipped++
	if c.skipped <= maxLoggedSkips {
		logger.Debug("Skipping row %d: %v", line, err)
	} else if c.skipped == maxLoggedSkips+1 {
		logger.Debug("Further skipped rows are not logged individually")
	}
}
