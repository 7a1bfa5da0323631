package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/models"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel used for student changes.
const DefaultNotifyChannel = "students_changed"

const studentColumns = `id, first_name, last_name, dni, birth_date, COALESCE(gender, '') AS gender, phone_mobile,
        COALESCE(phone_home, '') AS phone_home, email, career, status, COALESCE(avatar, '') AS avatar, created_at`

// StudentsSchema creates the students table when it does not exist yet.
const StudentsSchema = `CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    dni TEXT NOT NULL,
    birth_date TEXT NOT NULL,
    gender TEXT,
    phone_mobile TEXT NOT NULL,
    phone_home TEXT,
    email TEXT NOT NULL,
    career TEXT NOT NULL,
    status TEXT NOT NULL,
    avatar TEXT,
    created_at BIGINT
)`

var studentColumnNames = map[string]string{
	"firstName":   "first_name",
	"lastName":    "last_name",
	"dni":         "dni",
	"birthDate":   "birth_date",
	"gender":      "gender",
	"phoneMobile": "phone_mobile",
	"phoneHome":   "phone_home",
	"email":       "email",
	"career":      "career",
	"status":      "status",
	"avatar":      "avatar",
	"createdAt":   "created_at",
}

type notificationListener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// StudentRepository keeps student records in PostgreSQL. Every committed write
// issues pg_notify on the change channel; subscribers LISTEN on it and reload.
type StudentRepository struct {
	db          *sqlx.DB
	channel     string
	logger      *zap.Logger
	newListener func() notificationListener
}

// NewStudentRepository constructs a StudentRepository. dsn is used to open the
// dedicated LISTEN connection for subscriptions.
func NewStudentRepository(db *sqlx.DB, dsn, channel string, logger *zap.Logger) *StudentRepository {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &StudentRepository{db: db, channel: channel, logger: logger}
	r.newListener = func() notificationListener {
		return pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				r.logger.Warn("students listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
	}
	return r
}

// EnsureSchema creates the students table if needed.
func (r *StudentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, StudentsSchema); err != nil {
		return fmt.Errorf("ensure students schema: %w", err)
	}
	return nil
}

// List returns every student ordered by last and first name.
func (r *StudentRepository) List(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students ORDER BY last_name, first_name", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Subscribe delivers the current table, then reloads and delivers it after every
// notification. Notifications queued during a reload are drained so a burst of
// writes costs one reload.
func (r *StudentRepository) Subscribe(ctx context.Context, onChange SnapshotFunc) (Unsubscribe, error) {
	listener := r.newListener()
	if err := listener.Listen(r.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("subscribe students: %w", err)
	}

	students, err := r.List(ctx)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("subscribe students: %w", err)
	}
	onChange(students)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer listener.Close() //nolint:errcheck
		notifications := listener.NotificationChannel()
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				go listener.Ping() //nolint:errcheck
			case n, ok := <-notifications:
				if !ok {
					return
				}
				if n != nil {
					r.logger.Debug("students changed", zap.String("payload", n.Extra))
				}
				drainNotifications(notifications)
				students, err := r.List(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					r.logger.Warn("reload students after change", zap.Error(err))
					continue
				}
				onChange(students)
			}
		}
	}()

	return func() { cancel() }, nil
}

func drainNotifications(ch <-chan *pq.Notification) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Get fetches one student by id.
func (r *StudentRepository) Get(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &student, nil
}

// Create inserts a student under a generated id.
func (r *StudentRepository) Create(ctx context.Context, student models.Student) (string, error) {
	id := uuid.NewString()
	const query = `INSERT INTO students (id, first_name, last_name, dni, birth_date, gender, phone_mobile, phone_home, email, career, status, avatar, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	err := r.inTx(ctx, "create:"+id, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			id, student.FirstName, student.LastName, student.DNI, student.BirthDate,
			nullString(student.Gender), student.PhoneMobile, nullString(student.PhoneHome),
			student.Email, student.Career, string(student.Status), nullString(student.Avatar),
			student.CreatedAt,
		)
		return err
	})
	if err != nil {
		return "", writeErr("create", "", err)
	}
	return id, nil
}

// Update writes only the provided columns; the row must exist.
func (r *StudentRepository) Update(ctx context.Context, id string, fields models.StudentFields) error {
	keys := updateKeys(fields)
	if len(keys) == 0 {
		return nil
	}
	sets := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for _, key := range keys {
		args = append(args, storedValue(fields[key]))
		sets = append(sets, fmt.Sprintf("%s = $%d", studentColumnNames[key], len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	err := r.inTx(ctx, "update:"+id, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrStudentNotFound
		}
		return nil
	})
	if err != nil {
		return writeErr("update", id, err)
	}
	return nil
}

// Remove deletes the row; an unknown id is a no-op.
func (r *StudentRepository) Remove(ctx context.Context, id string) error {
	err := r.inTx(ctx, "remove:"+id, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errNothingChanged
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNothingChanged) {
		return writeErr("remove", id, err)
	}
	return nil
}

var errNothingChanged = errors.New("nothing changed")

// inTx runs fn and the change notification in one transaction, so listeners
// only hear about committed writes.
func (r *StudentRepository) inTx(ctx context.Context, payload string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, r.channel, payload); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
