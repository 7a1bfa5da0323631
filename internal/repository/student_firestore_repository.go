package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/isdm-app/isdm-api/internal/models"
)

// FirestoreStudentRepository keeps student records in a Firestore collection and
// follows it with a query snapshot listener.
type FirestoreStudentRepository struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// NewFirestoreStudentRepository constructs a Firestore-backed store.
func NewFirestoreStudentRepository(client *firestore.Client, collection string, logger *zap.Logger) *FirestoreStudentRepository {
	if collection == "" {
		collection = StudentsCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreStudentRepository{client: client, collection: collection, logger: logger}
}

func (r *FirestoreStudentRepository) col() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

// Subscribe waits for the first query snapshot, delivers it, then keeps delivering
// every later snapshot from a background goroutine. The iterator yields the latest
// state of the query, so bursts of changes arrive as a single snapshot.
func (r *FirestoreStudentRepository) Subscribe(ctx context.Context, onChange SnapshotFunc) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := r.col().OrderBy("lastName", firestore.Asc).OrderBy("firstName", firestore.Asc).Snapshots(ctx)

	snap, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("subscribe students: %w", err)
	}
	if !r.deliver(snap.Documents, onChange) {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("subscribe students: initial snapshot unreadable")
	}

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				r.logger.Error("students listener stopped", zap.String("collection", r.collection), zap.Error(err))
				return
			}
			r.deliver(snap.Documents, onChange)
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// documentLister is the part of a query snapshot's document iterator that
// deliver reads.
type documentLister interface {
	GetAll() ([]*firestore.DocumentSnapshot, error)
}

// deliver decodes a snapshot and hands it to onChange. An unreadable snapshot is
// dropped so subscribers keep the previous one.
func (r *FirestoreStudentRepository) deliver(docs documentLister, onChange SnapshotFunc) bool {
	all, err := docs.GetAll()
	if err != nil {
		r.logger.Warn("drop unreadable students snapshot", zap.String("collection", r.collection), zap.Error(err))
		return false
	}
	students := make([]models.Student, 0, len(all))
	for _, doc := range all {
		var s models.Student
		if err := doc.DataTo(&s); err != nil {
			r.logger.Warn("skip malformed student document", zap.String("id", doc.Ref.ID), zap.Error(err))
			continue
		}
		s.ID = doc.Ref.ID
		students = append(students, s)
	}
	onChange(students)
	return true
}

// Get reads a single document.
func (r *FirestoreStudentRepository) Get(ctx context.Context, id string) (*models.Student, error) {
	if id == "" {
		return nil, ErrStudentNotFound
	}
	doc, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("get student %s: %w", id, err)
	}
	var s models.Student
	if err := doc.DataTo(&s); err != nil {
		return nil, fmt.Errorf("decode student %s: %w", id, err)
	}
	s.ID = doc.Ref.ID
	return &s, nil
}

// Create adds a document with a store-assigned id.
func (r *FirestoreStudentRepository) Create(ctx context.Context, student models.Student) (string, error) {
	ref, _, err := r.col().Add(ctx, documentFields(student))
	if err != nil {
		return "", writeErr("create", "", err)
	}
	return ref.ID, nil
}

// Update sets only the provided fields; the document must exist.
func (r *FirestoreStudentRepository) Update(ctx context.Context, id string, fields models.StudentFields) error {
	if id == "" {
		return writeErr("update", id, ErrStudentNotFound)
	}
	keys := updateKeys(fields)
	if len(keys) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(keys))
	for _, key := range keys {
		updates = append(updates, firestore.Update{Path: key, Value: storedValue(fields[key])})
	}
	if _, err := r.col().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return writeErr("update", id, ErrStudentNotFound)
		}
		return writeErr("update", id, err)
	}
	return nil
}

// Remove deletes the document; deleting a missing document succeeds.
func (r *FirestoreStudentRepository) Remove(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := r.col().Doc(id).Delete(ctx); err != nil {
		return writeErr("remove", id, err)
	}
	return nil
}
