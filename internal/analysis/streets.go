package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rewired-gh/crashmap/internal/models"
)

// DefaultTopK is the length of the dangerous-streets table.
const DefaultTopK = 5

// TopStreets ranks individual records by their count for class and returns the
// first k (street, count) pairs. Records without a street or with a zero count
// are dropped; ties keep store order.
//
// Ranking is per record, not per street: a street with several qualifying
// collisions can appear more than once.
func TopStreets(records []models.CollisionRecord, class models.InjuryClass, k int) ([]models.StreetCount, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: injury class %q", ErrInvalidArgument, class)
	}
	if k <= 0 {
		return []models.StreetCount{}, nil
	}

	ranked := make([]models.StreetCount, 0)
	for i := range records {
		r := &records[i]
		if !r.HasStreet() {
			continue
		}
		n := class.Count(r)
		if n == 0 {
			continue
		}
		ranked = append(ranked, models.StreetCount{Street: strings.TrimSpace(r.OnStreetName), Count: n})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k:k], nil
}
