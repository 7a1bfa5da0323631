package directory

import (
	"sync"

	"github.com/isdm-app/isdm-api/internal/models"
)

// Listener receives every recomputed view together with the query that produced it.
type Listener func(students []models.Student, q Query)

// Engine owns one screen's record snapshot and query state. Any change to either
// recomputes the whole projection; there is no incremental maintenance.
//
// Snapshots and user input arrive on different goroutines. Recomputation happens
// under mu; delivery happens under notifyMu so a listener sees views in the order
// they were produced and never receives an older view after a newer one.
type Engine struct {
	mu       sync.Mutex
	records  []models.Student
	query    Query
	view     []models.Student
	gen      uint64
	listener Listener

	notifyMu  sync.Mutex
	delivered uint64
}

// NewEngine returns an engine in the default query state with an empty snapshot.
// listener may be nil.
func NewEngine(listener Listener) *Engine {
	return &Engine{query: DefaultQuery(), view: []models.Student{}, listener: listener}
}

// SetRecords replaces the snapshot with the latest one pushed by the store.
func (e *Engine) SetRecords(records []models.Student) {
	snapshot := make([]models.Student, len(records))
	copy(snapshot, records)
	e.update(func() { e.records = snapshot })
}

// SetQuery replaces the whole query state.
func (e *Engine) SetQuery(q Query) {
	e.update(func() { e.query = q })
}

// SetSearch changes only the search text.
func (e *Engine) SetSearch(text string) {
	e.update(func() { e.query.Search = text })
}

// SetSort changes only the sort key.
func (e *Engine) SetSort(key SortKey) {
	e.update(func() { e.query.SortBy = key })
}

// SetStatusFilter changes only the status filter.
func (e *Engine) SetStatusFilter(status string) {
	e.update(func() { e.query.Status = status })
}

// SetCareerFilter changes only the career filter.
func (e *Engine) SetCareerFilter(career string) {
	e.update(func() { e.query.Career = career })
}

// View returns a copy of the current projection.
func (e *Engine) View() []models.Student {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Student, len(e.view))
	copy(out, e.view)
	return out
}

// Query returns the current query state.
func (e *Engine) Query() Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// Lookup finds a record in the latest snapshot, filtered out or not.
func (e *Engine) Lookup(id string) (models.Student, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.Student{}, false
}

func (e *Engine) update(mutate func()) {
	e.mu.Lock()
	mutate()
	e.view = View(e.records, e.query)
	e.gen++
	gen, q := e.gen, e.query
	view := make([]models.Student, len(e.view))
	copy(view, e.view)
	e.mu.Unlock()

	if e.listener == nil {
		return
	}
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if gen <= e.delivered {
		return
	}
	e.delivered = gen
	e.listener(view, q)
}
