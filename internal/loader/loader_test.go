package loader

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/crashmap/internal/fetch"
)

const reducedCSV = `CRASH_DATE,CRASH_TIME,BOROUGH,LATITUDE,LONGITUDE,INJURED_PERSONS,INJURED_PEDESTRIANS,INJURED_CYCLISTS,INJURED_MOTORISTS,ON_STREET_NAME
07/04/2019,17:30,MANHATTAN,40.7128,-74.0060,2,1,0,1,BROADWAY
07/04/2019,9:05,BROOKLYN,40.6782,-73.9442,0,0,0,0,
07/05/2019,23:59,QUEENS,,-73.7949,1,0,1,0,MAIN ST
07/05/2019,not-a-time,BRONX,40.8448,-73.8648,1,1,0,0,GRAND CONCOURSE
07/06/2019,00:00,BRONX,40.8448,-73.8648,1.0,,1,0,GRAND CONCOURSE
07/06/2019,00:10,BRONX,40.8448,-73.8648,-1,0,0,0,GRAND CONCOURSE
`

func TestParseCSV_RowPolicy(t *testing.T) {
	records, stats, err := ParseCSV(context.Background(), strings.NewReader(reducedCSV), 0)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	want := Stats{Rows: 6, Loaded: 3, Malformed: 2, MissingCoordinate: 1}
	if stats != want {
		t.Errorf("Unexpected stats %+v, expected %+v", stats, want)
	}
	if stats.Rows != stats.Loaded+stats.Malformed+stats.MissingCoordinate {
		t.Errorf("Stats do not add up: %+v", stats)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	first := records[0]
	wantTS := time.Date(2019, 7, 4, 17, 30, 0, 0, time.UTC)
	if !first.Timestamp.Equal(wantTS) {
		t.Errorf("Expected timestamp %v, got %v", wantTS, first.Timestamp)
	}
	if first.Latitude != 40.7128 || first.Longitude != -74.0060 {
		t.Errorf("Unexpected coordinates %f,%f", first.Latitude, first.Longitude)
	}
	if first.InjuredPersons != 2 || first.InjuredPedestrians != 1 || first.InjuredMotorists != 1 {
		t.Errorf("Unexpected counts %+v", first)
	}
	if first.OnStreetName != "BROADWAY" {
		t.Errorf("Expected BROADWAY, got %q", first.OnStreetName)
	}

	if records[1].HasStreet() {
		t.Errorf("Expected second record without street, got %q", records[1].OnStreetName)
	}
	if records[1].Timestamp.Hour() != 9 || records[1].Timestamp.Minute() != 5 {
		t.Errorf("Expected 09:05, got %v", records[1].Timestamp)
	}

	// "1.0" is an integral float, and an empty cell counts as zero.
	if records[2].InjuredPersons != 1 || records[2].InjuredPedestrians != 0 {
		t.Errorf("Unexpected counts for float/empty cells: %+v", records[2])
	}
}

func TestParseCSV_OpenDataHeaders(t *testing.T) {
	data := "CRASH DATE,CRASH TIME,LATITUDE,LONGITUDE,NUMBER OF PERSONS INJURED,NUMBER OF PEDESTRIANS INJURED,NUMBER OF CYCLIST INJURED,NUMBER OF MOTORIST INJURED,ON STREET NAME,COLLISION_ID\n" +
		"2021-09-11,2:39,40.667202,-73.8665,2,0,0,2,WHITESTONE EXPRESSWAY,4455765\n"

	records, stats, err := ParseCSV(context.Background(), strings.NewReader(data), 0)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if stats.Loaded != 1 {
		t.Fatalf("Expected 1 loaded record, got %+v", stats)
	}
	if records[0].InjuredMotorists != 2 || records[0].OnStreetName != "WHITESTONE EXPRESSWAY" {
		t.Errorf("Unexpected record %+v", records[0])
	}
}

func TestParseCSV_CombinedDateTime(t *testing.T) {
	data := "date/time,latitude,longitude,injured_persons,injured_pedestrians,injured_cyclists,injured_motorists\n" +
		"2019-07-04 17:30:45,40.7,-73.9,0,0,0,0\n"

	records, _, err := ParseCSV(context.Background(), strings.NewReader(data), 0)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Timestamp.Second() != 0 || records[0].Timestamp.Minute() != 30 {
		t.Errorf("Expected timestamp truncated to the minute, got %v", records[0].Timestamp)
	}
}

func TestParseCSV_MissingColumn(t *testing.T) {
	data := "CRASH_DATE,CRASH_TIME,LATITUDE,LONGITUDE\n07/04/2019,17:30,40.7,-73.9\n"

	_, _, err := ParseCSV(context.Background(), strings.NewReader(data), 0)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("Expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "injured_persons") {
		t.Errorf("Expected error to name the missing column, got %v", err)
	}
}

func TestParseCSV_MaxRows(t *testing.T) {
	_, stats, err := ParseCSV(context.Background(), strings.NewReader(reducedCSV), 2)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if stats.Rows != 2 || stats.Loaded != 2 {
		t.Errorf("Expected 2 rows read, got %+v", stats)
	}
}

func TestParseCSV_OverflowingCountIsMalformed(t *testing.T) {
	in := `CRASH_DATE,CRASH_TIME,LATITUDE,LONGITUDE,INJURED_PERSONS,INJURED_PEDESTRIANS,INJURED_CYCLISTS,INJURED_MOTORISTS,ON_STREET_NAME
07/04/2019,17:30,40.7128,-74.0060,1e30,0,0,0,BROADWAY
07/04/2019,17:31,40.7128,-74.0060,1,0,0,1,BROADWAY
`
	records, stats, err := ParseCSV(context.Background(), strings.NewReader(in), 0)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if stats.Malformed != 1 || stats.Loaded != 1 {
		t.Errorf("Expected the 1e30 row to be malformed, got %+v", stats)
	}
	if len(records) != 1 || records[0].InjuredPersons != 1 {
		t.Errorf("Unexpected records %+v", records)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"3", 3, false},
		{"2.0", 2, false},
		{"2.5", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"1e30", 0, true},
		{"-1e30", 0, true},
		{"Inf", 0, true},
		{"NaN", 0, true},
		{"99999999999", 0, true},
		{"2147483647", math.MaxInt32, false},
		{"2147483648.0", 0, true},
	}

	for _, tt := range tests {
		got, err := parseCount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCount(%q) = %d, expected %d", tt.in, got, tt.want)
		}
	}
}

func TestCSVLoader_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashes.csv")
	if err := os.WriteFile(path, []byte(reducedCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	l := &CSVLoader{Path: path}
	records, stats, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 3 || stats.Rows != 6 {
		t.Errorf("Unexpected result: %d records, %+v", len(records), stats)
	}
	if l.Source() != path {
		t.Errorf("Unexpected source %q", l.Source())
	}
}

func TestCSVLoader_RemoteFile(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, reducedCSV)
	}))
	defer mockServer.Close()

	l := &CSVLoader{
		Path:   mockServer.URL + "/crashes.csv",
		Remote: fetch.NewClient(5*time.Second, fetch.ClientConfig{RetryDelayBase: time.Millisecond}),
	}
	records, _, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}
}

func TestCSVLoader_RemoteWithoutClient(t *testing.T) {
	l := &CSVLoader{Path: "https://example.com/crashes.csv"}
	if _, _, err := l.Load(context.Background()); err == nil {
		t.Fatal("Expected error without an HTTP client")
	}
}
