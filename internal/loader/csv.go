package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rewired-gh/crashmap/internal/models"
)

// Opener opens a remote file; *fetch.Client satisfies it.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// CSVLoader reads a collision CSV export from a local path or an http(s) URL.
type CSVLoader struct {
	Path    string
	MaxRows int    // <= 0 means no limit
	Remote  Opener // required when Path is a URL
}

// Source returns the path or URL being read.
func (l *CSVLoader) Source() string {
	return l.Path
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Load opens the file and parses it.
func (l *CSVLoader) Load(ctx context.Context) ([]models.CollisionRecord, Stats, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if isURL(l.Path) {
		if l.Remote == nil {
			return nil, Stats{}, fmt.Errorf("no HTTP client configured for %s", l.Path)
		}
		rc, err = l.Remote.Open(ctx, l.Path)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("failed to download CSV: %w", err)
		}
	} else {
		rc, err = os.Open(l.Path)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("failed to open CSV: %w", err)
		}
	}
	defer rc.Close()

	return ParseCSV(ctx, rc, l.MaxRows)
}

// ParseCSV reads a header row followed by data rows, applying the row policy.
// At most maxRows data rows are read when maxRows > 0.
func ParseCSV(ctx context.Context, r io.Reader, maxRows int) ([]models.CollisionRecord, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	c, err := newCollector(headers)
	if err != nil {
		return nil, Stats{}, err
	}

	for maxRows <= 0 || c.stats.Rows < maxRows {
		if c.stats.Rows%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, c.stats, err
			}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, c.stats, fmt.Errorf("failed to read CSV: %w", err)
			}
			c.stats.Rows++
			c.stats.Malformed++
			continue
		}
		line, _ := reader.FieldPos(0)
		c.add(line, row)
	}

	return c.records, c.stats, nil
}
