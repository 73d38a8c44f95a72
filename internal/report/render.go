package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/crashmap/internal/models"
)

// maxBarWidth is the width of the longest bar in the minute chart.
const maxBarWidth = 40

func comma(n int) string {
	return humanize.Comma(int64(n))
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// WriteText renders the full report as the dashboard's sections in order.
func WriteText(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "Motor vehicle collisions in New York City\n")
	fmt.Fprintf(w, "Source: %s (%s records, snapshot %s)\n", r.Source, comma(r.Records), r.SnapshotID)
	if r.LoadStats.Rows > 0 {
		fmt.Fprintf(w, "Skipped: %s malformed, %s without coordinates\n",
			comma(r.LoadStats.Malformed), comma(r.LoadStats.MissingCoordinate))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Where are the most people injured in NYC?\n")
	fmt.Fprintf(w, "%s collisions with at least %d injured persons\n\n", comma(len(r.MapPoints)), r.MinInjured)

	fmt.Fprintf(w, "How many collisions occur during a given time of day?\n")
	if err := WriteHexagons(w, r.Hexagons); err != nil {
		return err
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Breakdown by minute %s\n", r.Window)
	if err := WriteMinutes(w, r.Minutes); err != nil {
		return err
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Top %d dangerous streets by affected class: %s\n", len(r.Streets), r.Class.Label())
	return WriteStreets(w, r.Streets)
}

// WriteMapPoints lists map locations one per line.
func WriteMapPoints(w io.Writer, points []models.MapPoint) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "LATITUDE\tLONGITUDE")
	for _, p := range points {
		fmt.Fprintf(tw, "%.6f\t%.6f\n", p.Lat, p.Lon)
	}
	return tw.Flush()
}

// WriteMinutes renders the minute histogram as a horizontal bar chart.
// Every minute is listed, including empty ones.
func WriteMinutes(w io.Writer, counts []models.MinuteCount) error {
	peak := 0
	for _, c := range counts {
		peak = max(peak, c.Count)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "MINUTE\tCRASHES\t")
	for _, c := range counts {
		bar := 0
		if peak > 0 {
			bar = (c.Count*maxBarWidth + peak - 1) / peak
		}
		fmt.Fprintf(tw, ":%02d\t%s\t%s\n", c.Minute, comma(c.Count), strings.Repeat("#", bar))
	}
	return tw.Flush()
}

// WriteHexagons lists occupied cells, densest first, after the view centre.
func WriteHexagons(w io.Writer, view models.HexView) error {
	fmt.Fprintf(w, "%s collisions %s in %s hexagons of %.0fm\n",
		comma(view.Collisions), models.HourWindow(view.Hour), comma(len(view.Bins)), view.RadiusMeters)
	fmt.Fprintf(w, "View centre: %.6f, %.6f (%s)\n", view.Center.Lat, view.Center.Lon, view.CenterSource)
	if len(view.Bins) == 0 {
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "CELL\tLATITUDE\tLONGITUDE\tCRASHES")
	for _, b := range densestFirst(view.Bins) {
		fmt.Fprintf(tw, "%d,%d\t%.6f\t%.6f\t%s\n", b.Col, b.Row, b.Center.Lat, b.Center.Lon, comma(b.Count))
	}
	return tw.Flush()
}

// WriteStreets renders the dangerous-streets ranking.
func WriteStreets(w io.Writer, streets []models.StreetCount) error {
	if len(streets) == 0 {
		_, err := fmt.Fprintln(w, "No qualifying collisions")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tSTREET\tINJURED")
	for i, s := range streets {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, s.Street, comma(s.Count))
	}
	return tw.Flush()
}

// WriteRecords renders raw records, as the "Show Raw Data" table did.
func WriteRecords(w io.Writer, records []models.CollisionRecord) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE/TIME\tLATITUDE\tLONGITUDE\tPERSONS\tPEDESTRIANS\tCYCLISTS\tMOTORISTS\tON STREET")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%d\t%d\t%d\t%d\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04"), r.Latitude, r.Longitude,
			r.InjuredPersons, r.InjuredPedestrians, r.InjuredCyclists, r.InjuredMotorists, r.OnStreetName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s records\n", comma(len(records)))
	return err
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Save writes r to path as JSON. The file is replaced atomically, so a reader
// never observes a partially written report.
func Save(path string, r *Report) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Load reads a report written by Save.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}

// densestFirst returns bins ordered by count, keeping first-seen order on ties.
func densestFirst(bins []models.HexBin) []models.HexBin {
	sorted := slices.Clone(bins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	return sorted
}
