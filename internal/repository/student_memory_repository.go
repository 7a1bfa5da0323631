package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/isdm-app/isdm-api/internal/models"
)

// MemoryStudentRepository is an in-process record store with the same listener
// contract as the remote backends. It backs development mode and tests.
type MemoryStudentRepository struct {
	mu        sync.RWMutex
	records   map[string]models.Student
	version   uint64
	listeners map[uint64]*memoryListener
	nextID    uint64
	writeErr  error
}

type memoryListener struct {
	fn        SnapshotFunc
	mu        sync.Mutex
	delivered uint64
	closed    atomic.Bool
}

// deliver hands snap to the listener unless a newer snapshot already went out.
func (l *memoryListener) deliver(version uint64, snap []models.Student) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() || version <= l.delivered {
		return
	}
	l.delivered = version
	l.fn(snap)
}

// NewMemoryStudentRepository constructs an empty in-memory store. Versions start
// at 1 so the initial snapshot of a fresh store is never mistaken for a stale one.
func NewMemoryStudentRepository() *MemoryStudentRepository {
	return &MemoryStudentRepository{
		records:   make(map[string]models.Student),
		listeners: make(map[uint64]*memoryListener),
		version:   1,
	}
}

// Seed inserts records as-is, assigning ids to those without one.
func (r *MemoryStudentRepository) Seed(students ...models.Student) []string {
	r.mu.Lock()
	ids := make([]string, 0, len(students))
	for _, s := range students {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		r.records[s.ID] = s
		ids = append(ids, s.ID)
	}
	r.mu.Unlock()
	r.publish()
	return ids
}

// SetWriteFailure makes every subsequent write fail with err until cleared with nil.
func (r *MemoryStudentRepository) SetWriteFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErr = err
}

// Subscribe registers onChange and immediately delivers the current snapshot.
// The listener is released when the returned function is called or ctx ends.
func (r *MemoryStudentRepository) Subscribe(ctx context.Context, onChange SnapshotFunc) (Unsubscribe, error) {
	l := &memoryListener{fn: onChange}

	r.mu.Lock()
	r.nextID++
	key := r.nextID
	r.listeners[key] = l
	version, snap := r.version, r.snapshotLocked()
	r.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			l.closed.Store(true)
			r.mu.Lock()
			delete(r.listeners, key)
			r.mu.Unlock()
		})
	}

	l.deliver(version, snap)

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			unsubscribe()
		}()
	}
	return unsubscribe, nil
}

// Get returns a copy of the record or ErrStudentNotFound.
func (r *MemoryStudentRepository) Get(ctx context.Context, id string) (*models.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.records[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return &s, nil
}

// Create stores a new record under a generated id.
func (r *MemoryStudentRepository) Create(ctx context.Context, student models.Student) (string, error) {
	r.mu.Lock()
	if r.writeErr != nil {
		err := r.writeErr
		r.mu.Unlock()
		return "", writeErr("create", "", err)
	}
	student.ID = uuid.NewString()
	r.records[student.ID] = student
	r.mu.Unlock()

	r.publish()
	return student.ID, nil
}

// Update merges fields into an existing record.
func (r *MemoryStudentRepository) Update(ctx context.Context, id string, fields models.StudentFields) error {
	r.mu.Lock()
	if r.writeErr != nil {
		err := r.writeErr
		r.mu.Unlock()
		return writeErr("update", id, err)
	}
	s, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return writeErr("update", id, ErrStudentNotFound)
	}
	applyFields(&s, fields)
	s.ID = id
	r.records[id] = s
	r.mu.Unlock()

	r.publish()
	return nil
}

// Remove deletes a record. Removing a missing id succeeds, like a document delete.
func (r *MemoryStudentRepository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.writeErr != nil {
		err := r.writeErr
		r.mu.Unlock()
		return writeErr("remove", id, err)
	}
	_, existed := r.records[id]
	delete(r.records, id)
	r.mu.Unlock()

	if existed {
		r.publish()
	}
	return nil
}

func (r *MemoryStudentRepository) publish() {
	r.mu.Lock()
	r.version++
	version := r.version
	listeners := make([]*memoryListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	for _, l := range listeners {
		own := make([]models.Student, len(snap))
		copy(own, snap)
		l.deliver(version, own)
	}
}

func (r *MemoryStudentRepository) snapshotLocked() []models.Student {
	out := make([]models.Student, 0, len(r.records))
	for _, s := range r.records {
		out = append(out, s)
	}
	sortByName(out)
	return out
}
