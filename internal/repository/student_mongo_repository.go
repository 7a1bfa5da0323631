package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/models"
)

type studentDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	models.Student `bson:",inline"`
}

func (d studentDocument) toModel() models.Student {
	s := d.Student
	s.ID = d.ID.Hex()
	return s
}

// MongoStudentRepository stores student records in a MongoDB collection and
// follows it through a change stream.
type MongoStudentRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStudentRepository constructs a MongoDB-backed store.
func NewMongoStudentRepository(coll *mongo.Collection, logger *zap.Logger) *MongoStudentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStudentRepository{coll: coll, logger: logger}
}

// Subscribe opens a change stream, delivers the current collection, then reloads
// and delivers the full collection after every change. Events that piled up while
// a reload ran are drained first so a burst costs one reload.
func (r *MongoStudentRepository) Subscribe(ctx context.Context, onChange SnapshotFunc) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	// The stream is opened before the initial load so no change falls between them.
	stream, err := r.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe students: %w", err)
	}

	students, err := r.load(ctx)
	if err != nil {
		_ = stream.Close(context.Background())
		cancel()
		return nil, fmt.Errorf("subscribe students: %w", err)
	}
	onChange(students)

	go func() {
		defer stream.Close(context.Background()) //nolint:errcheck
		for stream.Next(ctx) {
			for stream.TryNext(ctx) {
			}
			if ctx.Err() != nil {
				return
			}
			students, err := r.load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn("reload students after change", zap.Error(err))
				continue
			}
			onChange(students)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.logger.Error("students change stream stopped", zap.Error(err))
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (r *MongoStudentRepository) load(ctx context.Context) ([]models.Student, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []studentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo cursor decode failed: %w", err)
	}
	students := make([]models.Student, 0, len(docs))
	for _, d := range docs {
		students = append(students, d.toModel())
	}
	return students, nil
}

// Get reads a single document by its hex id.
func (r *MongoStudentRepository) Get(ctx context.Context, id string) (*models.Student, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrStudentNotFound
	}
	var doc studentDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("mongo find failed: %w", err)
	}
	s := doc.toModel()
	return &s, nil
}

// Create inserts a document and returns its generated id.
func (r *MongoStudentRepository) Create(ctx context.Context, student models.Student) (string, error) {
	res, err := r.coll.InsertOne(ctx, bson.M(documentFields(student)))
	if err != nil {
		return "", writeErr("create", "", fmt.Errorf("mongo insert failed: %w", err))
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", writeErr("create", "", fmt.Errorf("unexpected inserted id %v", res.InsertedID))
	}
	return oid.Hex(), nil
}

// Update applies $set with the provided fields; the document must exist.
func (r *MongoStudentRepository) Update(ctx context.Context, id string, fields models.StudentFields) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return writeErr("update", id, ErrStudentNotFound)
	}
	keys := updateKeys(fields)
	if len(keys) == 0 {
		return nil
	}
	set := bson.M{}
	for _, key := range keys {
		set[key] = storedValue(fields[key])
	}
	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return writeErr("update", id, fmt.Errorf("mongo update failed: %w", err))
	}
	if res.MatchedCount == 0 {
		return writeErr("update", id, ErrStudentNotFound)
	}
	return nil
}

// Remove deletes the document; an unknown id is a no-op.
func (r *MongoStudentRepository) Remove(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return writeErr("remove", id, fmt.Errorf("mongo delete failed: %w", err))
	}
	return nil
}
