package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/crashmap/internal/analysis"
	"github.com/rewired-gh/crashmap/internal/models"
	"github.com/rewired-gh/crashmap/internal/querycache"
	"github.com/rewired-gh/crashmap/internal/report"
	"github.com/rewired-gh/crashmap/internal/storage"
)

func testShell(t *testing.T, input string) (*shell, *bytes.Buffer, *querycache.Cache) {
	t.Helper()
	ts := time.Date(2019, 2, 1, 8, 15, 0, 0, time.UTC)
	records := []models.CollisionRecord{
		{Timestamp: ts, Latitude: 40.7306, Longitude: -73.9352, InjuredPersons: 2, InjuredCyclists: 2, OnStreetName: "QUEENS BOULEVARD"},
		{Timestamp: ts.Add(9 * time.Hour), Latitude: 40.7580, Longitude: -73.9855, InjuredPersons: 1, InjuredPedestrians: 1, OnStreetName: "BROADWAY"},
	}
	store, err := storage.New(records, "fixture")
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	cache, err := querycache.New(32)
	if err != nil {
		t.Fatalf("querycache.New failed: %v", err)
	}
	a, err := analysis.New(store, analysis.Options{Cache: cache})
	if err != nil {
		t.Fatalf("analysis.New failed: %v", err)
	}

	var out bytes.Buffer
	p := report.Params{Hour: 17, MinInjured: 0, Class: models.Pedestrians}
	return newShell(strings.NewReader(input), &out, a, p, 19), &out, cache
}

func TestShell_ParameterChanges(t *testing.T) {
	sh, out, _ := testShell(t, "hour 8\ninjured 2\nclass Cyclists\nparams\nquit\nhour 3\n")
	if err := sh.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if sh.params != (report.Params{Hour: 8, MinInjured: 2, Class: models.Cyclists}) {
		t.Errorf("Unexpected params after session: %+v", sh.params)
	}
	text := out.String()
	for _, want := range []string{
		"Exploring 2 collisions",
		"1 collisions between 8:00 and 9:00",
		"1 collisions with at least 2 injured",
		"QUEENS BOULEVARD leads for cyclists with 2 injured",
		"hour=8 injured>=2 class=cyclists",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "hour=3") {
		t.Error("Commands after quit were executed")
	}
}

func TestShell_ReaderExitsAfterQuit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"pending lines", "quit\nhour 3\nhour 4\nparams\n"},
		{"quit is last", "quit\n"},
		{"end of input", "hour 8\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh, _, _ := testShell(t, tt.input)
			if err := sh.run(context.Background()); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			select {
			case <-sh.readerDone:
			case <-time.After(2 * time.Second):
				t.Fatal("Input reader still running after run returned")
			}
		})
	}
}

func TestShell_RejectsOutOfRange(t *testing.T) {
	sh, out, _ := testShell(t, "hour 24\ninjured 20\ninjured -1\nclass trucks\nhour\nfrobnicate\n")
	if err := sh.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if sh.params != (report.Params{Hour: 17, MinInjured: 0, Class: models.Pedestrians}) {
		t.Errorf("Invalid input changed params: %+v", sh.params)
	}
	if n := strings.Count(out.String(), "error:"); n != 6 {
		t.Errorf("Expected 6 errors, got %d:\n%s", n, out.String())
	}
}

func TestShell_ViewsUseCache(t *testing.T) {
	sh, out, cache := testShell(t, "minutes\nminutes\nstreets\nhexbins\nraw\n")
	if err := sh.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "BROADWAY") || !strings.Contains(text, ":59") {
		t.Errorf("Unexpected view output:\n%s", text)
	}
	if hits, _ := cache.Stats(); hits == 0 {
		t.Error("Expected repeated views to hit the cache")
	}
}

func TestShell_JSON(t *testing.T) {
	sh, out, _ := testShell(t, "streets\n")
	sh.asJSON = true
	if err := sh.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), `"street": "BROADWAY"`) {
		t.Errorf("Expected JSON ranking:\n%s", out.String())
	}
}

func TestShell_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sh, _, _ := testShell(t, "hour 8\n")
	if err := sh.run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
