package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/crashmap/internal/analysis"
	"github.com/rewired-gh/crashmap/internal/models"
	"github.com/rewired-gh/crashmap/internal/storage"
)

func testAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	ts := time.Date(2021, 6, 1, 17, 0, 0, 0, time.UTC)
	records := []models.CollisionRecord{
		{Timestamp: ts.Add(12 * time.Minute), Latitude: 40.7580, Longitude: -73.9855, InjuredPersons: 2, InjuredPedestrians: 2, OnStreetName: "BROADWAY"},
		{Timestamp: ts.Add(12 * time.Minute), Latitude: 40.7128, Longitude: -74.0060, InjuredPersons: 1, InjuredCyclists: 1, OnStreetName: "CHAMBERS STREET"},
		{Timestamp: ts.Add(48 * time.Minute), Latitude: 40.6501, Longitude: -73.9496, InjuredPersons: 0},
		{Timestamp: ts.Add(-5 * time.Hour), Latitude: 40.7306, Longitude: -73.9352, InjuredPersons: 4, InjuredPedestrians: 1, OnStreetName: "QUEENS BOULEVARD"},
	}
	s, err := storage.New(records, "fixture")
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	a, err := analysis.New(s, analysis.Options{})
	if err != nil {
		t.Fatalf("analysis.New failed: %v", err)
	}
	return a
}

func TestBuild(t *testing.T) {
	a := testAnalyzer(t)
	r, err := Build(context.Background(), a, Params{Hour: 17, MinInjured: 1, Class: models.Pedestrians})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if r.ID == "" || r.SnapshotID != a.Store().ID() {
		t.Errorf("Unexpected identifiers id=%q snapshot=%q", r.ID, r.SnapshotID)
	}
	if r.Records != 4 || r.MaxInjured != 4 {
		t.Errorf("Unexpected snapshot summary records=%d max=%d", r.Records, r.MaxInjured)
	}
	if r.Window != "between 17:00 and 18:00" {
		t.Errorf("Unexpected window %q", r.Window)
	}
	if len(r.MapPoints) != 3 {
		t.Errorf("Expected 3 map points, got %d", len(r.MapPoints))
	}
	if len(r.Minutes) != 60 || r.Minutes[12].Count != 2 || r.Minutes[48].Count != 1 {
		t.Errorf("Unexpected minutes %v", r.Minutes)
	}
	if r.Hexagons.Collisions != 3 || r.Hexagons.CenterSource != models.CenterFiltered {
		t.Errorf("Unexpected hexagon view %+v", r.Hexagons)
	}
	// The ranking covers the whole snapshot, including the 12:00 collision.
	want := []models.StreetCount{{Street: "BROADWAY", Count: 2}, {Street: "QUEENS BOULEVARD", Count: 1}}
	if len(r.Streets) != len(want) || r.Streets[0] != want[0] || r.Streets[1] != want[1] {
		t.Errorf("Expected streets %v, got %v", want, r.Streets)
	}
}

func TestBuild_InvalidParams(t *testing.T) {
	a := testAnalyzer(t)

	tests := []struct {
		name   string
		params Params
	}{
		{"hour", Params{Hour: 24, Class: models.Cyclists}},
		{"threshold", Params{Hour: 1, MinInjured: -2, Class: models.Cyclists}},
		{"class", Params{Hour: 1, Class: "trucks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(context.Background(), a, tt.params); !errors.Is(err, analysis.ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestWriteText(t *testing.T) {
	r, err := Build(context.Background(), testAnalyzer(t), Params{Hour: 3, MinInjured: 0, Class: models.Motorists})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, r); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Where are the most people injured in NYC?",
		"4 collisions with at least 0 injured persons",
		"0 collisions between 3:00 and 4:00",
		"(snapshot)",
		"Breakdown by minute between 3:00 and 4:00",
		":59",
		"affected class: Motorists",
		"No qualifying collisions",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteMinutes_Bars(t *testing.T) {
	counts := []models.MinuteCount{{Minute: 0, Count: 0}, {Minute: 1, Count: 1500}, {Minute: 2, Count: 750}}

	var buf bytes.Buffer
	if err := WriteMinutes(&buf, counts); err != nil {
		t.Fatalf("WriteMinutes failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header and 3 rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[2], "1,500") || strings.Count(lines[2], "#") != maxBarWidth {
		t.Errorf("Unexpected peak row %q", lines[2])
	}
	if strings.Count(lines[3], "#") != maxBarWidth/2 {
		t.Errorf("Unexpected half row %q", lines[3])
	}
	if strings.Contains(lines[1], "#") {
		t.Errorf("Empty minute has a bar: %q", lines[1])
	}
}

func TestWriteHexagons_DensestFirst(t *testing.T) {
	view := models.HexView{
		Hour: 9, RadiusMeters: 100, Collisions: 4,
		Bins: []models.HexBin{
			{Col: 1, Row: 1, Count: 1},
			{Col: 2, Row: 2, Count: 3},
		},
	}
	var buf bytes.Buffer
	if err := WriteHexagons(&buf, view); err != nil {
		t.Fatalf("WriteHexagons failed: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "2,2") > strings.Index(out, "1,1") {
		t.Errorf("Expected densest cell first:\n%s", out)
	}
	if view.Bins[0].Col != 1 {
		t.Error("WriteHexagons reordered the caller's bins")
	}
}

func TestSaveAndLoad(t *testing.T) {
	r, err := Build(context.Background(), testAnalyzer(t), Params{Hour: 17, MinInjured: 2, Class: models.Cyclists})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "report.json")
	if err := Save(path, r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file left behind")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ID != r.ID || got.Class != models.Cyclists || got.Hour != 17 {
		t.Errorf("Unexpected header after reload: %+v", got)
	}
	if len(got.Minutes) != len(r.Minutes) || len(got.Hexagons.Bins) != len(r.Hexagons.Bins) {
		t.Error("Derived tables changed across save and load")
	}
	if len(got.Streets) != 1 || got.Streets[0].Street != "CHAMBERS STREET" {
		t.Errorf("Unexpected streets after reload: %v", got.Streets)
	}
}
