// Package cli implements isdmctl, the administrative command line for the
// student directory.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/service"
)

type studentService interface {
	Get(ctx context.Context, id string) (*models.Student, error)
	Remove(ctx context.Context, id string) error
}

type directoryLister interface {
	WaitReady(ctx context.Context) error
	List(q directory.Query) ([]models.Student, error)
}

type exportRenderer interface {
	Render(students []models.Student, q directory.Query, format service.ExportFormat) (*service.ExportFile, error)
}

type tokenIssuer interface {
	Issue(userID, email string, ttl time.Duration) (string, error)
}

// Services are the collaborators commands run against.
type Services struct {
	Students  studentService
	Directory directoryLister
	Exports   exportRenderer
	Tokens    tokenIssuer
}

// loadTimeout bounds the wait for the first snapshot of a remote store.
var loadTimeout = 30 * time.Second

// NewRootCommand builds the isdmctl command tree bound to s. Every call returns
// an independent tree with its own flag values.
func NewRootCommand(s Services) *cobra.Command {
	root := &cobra.Command{
		Use:           "isdmctl",
		Short:         "Administer the ISDM student directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newStudentsCommand(s))
	root.AddCommand(newTokenCommand(s.Tokens))
	return root
}

// Execute runs the command line against s with ctx as the base context.
func Execute(ctx context.Context, s Services) error {
	return NewRootCommand(s).ExecuteContext(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func contextWithLoadTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(commandContext(cmd), loadTimeout)
}
