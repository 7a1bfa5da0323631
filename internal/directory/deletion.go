package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/isdm-app/isdm-api/internal/models"
)

// DeletionState is a state of the delete confirmation dialog.
type DeletionState string

const (
	DeletionIdle                DeletionState = "idle"
	DeletionPendingConfirmation DeletionState = "pending_confirmation"
	DeletionDeleting            DeletionState = "deleting"
	DeletionErrorShown          DeletionState = "error_shown"
)

// DeleteFailedMessage is shown when the store rejects a removal.
const DeleteFailedMessage = "could not delete the student"

// ConfirmationPrompt is the question shown while a deletion awaits confirmation.
func ConfirmationPrompt(student models.Student) string {
	return fmt.Sprintf("Are you sure you want to delete %s %s?", student.FirstName, student.LastName)
}

// ErrInvalidTransition is returned when an action is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid deletion transition")

// Remover deletes a record by id.
type Remover interface {
	Remove(ctx context.Context, id string) error
}

// DeletionFlow is the confirm-before-delete dialog of one screen. At most one
// record is pending or being deleted at a time.
type DeletionFlow struct {
	remover Remover

	mu      sync.Mutex
	state   DeletionState
	pending *models.Student
	message string
}

// NewDeletionFlow returns a flow in the idle state.
func NewDeletionFlow(remover Remover) *DeletionFlow {
	return &DeletionFlow{remover: remover, state: DeletionIdle}
}

// State returns the current state.
func (f *DeletionFlow) State() DeletionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns the record awaiting confirmation or deletion, if any.
func (f *DeletionFlow) Pending() (models.Student, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return models.Student{}, false
	}
	return *f.pending, true
}

// Message returns the error text while in DeletionErrorShown.
func (f *DeletionFlow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Request asks for confirmation to delete student.
func (f *DeletionFlow) Request(student models.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeletionIdle {
		return ErrInvalidTransition
	}
	f.pending = &student
	f.state = DeletionPendingConfirmation
	return nil
}

// Cancel dismisses the confirmation without touching the store.
func (f *DeletionFlow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeletionPendingConfirmation {
		return ErrInvalidTransition
	}
	f.pending = nil
	f.state = DeletionIdle
	return nil
}

// Confirm removes the pending record. On success the flow returns to idle; on
// failure it moves to DeletionErrorShown and returns the store error.
func (f *DeletionFlow) Confirm(ctx context.Context) error {
	if _, err := f.BeginDelete(); err != nil {
		return err
	}
	return f.CompleteDelete(ctx)
}

// BeginDelete moves a pending confirmation to DeletionDeleting and returns the
// record to remove. Cancel is rejected from this point on.
func (f *DeletionFlow) BeginDelete() (models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeletionPendingConfirmation || f.pending == nil {
		return models.Student{}, ErrInvalidTransition
	}
	f.state = DeletionDeleting
	return *f.pending, nil
}

// CompleteDelete runs the store removal started by BeginDelete and resolves to
// idle or DeletionErrorShown. The lock is not held during the store call.
func (f *DeletionFlow) CompleteDelete(ctx context.Context) error {
	f.mu.Lock()
	if f.state != DeletionDeleting || f.pending == nil {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	id := f.pending.ID
	f.mu.Unlock()

	err := f.remover.Remove(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	if err != nil {
		f.state = DeletionErrorShown
		f.message = DeleteFailedMessage
		return err
	}
	f.state = DeletionIdle
	return nil
}

// Acknowledge dismisses the error notice.
func (f *DeletionFlow) Acknowledge() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != DeletionErrorShown {
		return ErrInvalidTransition
	}
	f.message = ""
	f.state = DeletionIdle
	return nil
}
