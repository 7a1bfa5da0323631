package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/isdm-app/isdm-api/pkg/config"
)

// App wraps the initialised Firebase application. Clients are created lazily so a
// deployment that only verifies tokens never opens a Firestore connection.
type App struct {
	app *fb.App
}

// New initialises Firebase from an explicit credentials file when configured,
// falling back to application default credentials.
func New(ctx context.Context, cfg config.FirebaseConfig) (*App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *fb.Config
	if cfg.ProjectID != "" {
		fbCfg = &fb.Config{ProjectID: cfg.ProjectID}
	}

	app, err := fb.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return &App{app: app}, nil
}

// Firestore returns a Firestore client; callers own Close.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	return client, nil
}

// Auth returns the Firebase Authentication admin client.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	client, err := a.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return client, nil
}
