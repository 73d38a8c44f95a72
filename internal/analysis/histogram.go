package analysis

import (
	"github.com/rewired-gh/crashmap/internal/models"
)

// MinutesPerHour is the length of a minute histogram.
const MinutesPerHour = 60

// MinuteHistogram counts records per minute of the hour. Callers pass an
// hour-filtered set; every slot is present, and the slots sum to len(records).
func MinuteHistogram(records []models.CollisionRecord) [MinutesPerHour]int {
	var hist [MinutesPerHour]int
	for i := range records {
		hist[records[i].Timestamp.Minute()]++
	}
	return hist
}

// MinuteCounts turns a histogram into (minute, count) pairs for a bar chart.
func MinuteCounts(hist [MinutesPerHour]int) []models.MinuteCount {
	counts := make([]models.MinuteCount, MinutesPerHour)
	for m, n := range hist {
		counts[m] = models.MinuteCount{Minute: m, Count: n}
	}
	return counts
}
