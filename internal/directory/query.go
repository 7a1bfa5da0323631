// Package directory projects the live student collection into the ordered list a
// screen renders, and drives the delete confirmation dialog of that screen.
package directory

import (
	"fmt"
	"strings"

	"github.com/isdm-app/isdm-api/internal/models"
)

// SortKey selects the comparator applied after filtering.
type SortKey string

const (
	SortAZ     SortKey = "a-z"
	SortZA     SortKey = "z-a"
	SortRecent SortKey = "reciente"
	SortOldest SortKey = "antiguo"
)

// StatusAll and CareerAll disable the respective equality filters.
const (
	StatusAll = "todos"
	CareerAll = "todas"
)

// Query is the per-screen directory state.
type Query struct {
	Search string  `json:"search"`
	SortBy SortKey `json:"sortBy"`
	Status string  `json:"status"`
	Career string  `json:"career"`
}

// DefaultQuery is the state a screen starts from.
func DefaultQuery() Query {
	return Query{Search: "", SortBy: SortAZ, Status: StatusAll, Career: CareerAll}
}

// ParseQuery builds a Query from raw parameters. Empty values take the defaults;
// values outside the enumerations are rejected.
func ParseQuery(search, sortBy, status, career string) (Query, error) {
	q := DefaultQuery()
	q.Search = search

	if sortBy = strings.TrimSpace(sortBy); sortBy != "" {
		key := SortKey(strings.ToLower(sortBy))
		switch key {
		case SortAZ, SortZA, SortRecent, SortOldest:
			q.SortBy = key
		default:
			return q, fmt.Errorf("unknown sort %q", sortBy)
		}
	}

	if status = strings.TrimSpace(status); status != "" {
		status = strings.ToLower(status)
		if status != StatusAll && !models.StudentStatus(status).Valid() {
			return q, fmt.Errorf("unknown status %q", status)
		}
		q.Status = status
	}

	if career = strings.TrimSpace(career); career != "" {
		if career != CareerAll && !models.IsCareer(career) {
			return q, fmt.Errorf("unknown career %q", career)
		}
		q.Career = career
	}

	return q, nil
}
