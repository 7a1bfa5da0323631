package directory

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/isdm-app/isdm-api/internal/models"
)

// View filters and sorts records for q. The input slice is never modified and the
// result shares no backing array with it. Sorting is stable, so records that
// compare equal keep the order the store delivered them in.
//
// Search is case-insensitive but accent-sensitive: "garcia" does not match "García".
func View(records []models.Student, q Query) []models.Student {
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.Student, 0, len(records))
	for _, rec := range records {
		if !matchesSearch(rec, needle) {
			continue
		}
		if q.Status != "" && q.Status != StatusAll && string(rec.Status) != q.Status {
			continue
		}
		if q.Career != "" && q.Career != CareerAll && rec.Career != q.Career {
			continue
		}
		out = append(out, rec)
	}

	sortRecords(out, q.SortBy)
	return out
}

func matchesSearch(rec models.Student, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(rec.FullName()), needle) {
		return true
	}
	dni := strings.ToLower(strings.ReplaceAll(rec.DNI, ".", ""))
	return strings.Contains(dni, needle)
}

func sortRecords(records []models.Student, key SortKey) {
	switch key {
	case SortZA:
		c := newNameCollator()
		sort.SliceStable(records, func(i, j int) bool {
			return c.CompareString(records[i].FullName(), records[j].FullName()) > 0
		})
	case SortRecent:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CreatedAtOrZero() > records[j].CreatedAtOrZero()
		})
	case SortOldest:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CreatedAtOrZero() < records[j].CreatedAtOrZero()
		})
	default:
		c := newNameCollator()
		sort.SliceStable(records, func(i, j int) bool {
			return c.CompareString(records[i].FullName(), records[j].FullName()) < 0
		})
	}
}

// A Collator keeps internal buffers, so each sort gets its own.
func newNameCollator() *collate.Collator {
	return collate.New(language.Spanish)
}
