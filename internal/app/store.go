// Package app assembles the record store, services and HTTP router from config.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/repository"
	"github.com/isdm-app/isdm-api/internal/service"
	"github.com/isdm-app/isdm-api/pkg/cache"
	"github.com/isdm-app/isdm-api/pkg/config"
	"github.com/isdm-app/isdm-api/pkg/database"
	"github.com/isdm-app/isdm-api/pkg/firebase"
)

const cacheKeyPrefix = "isdm"

// Resources owns the backend clients opened for a process.
type Resources struct {
	cfg    *config.Config
	logger *zap.Logger

	fbOnce sync.Once
	fbApp  *firebase.App
	fbErr  error

	closers []func() error
}

// NewResources prepares lazy backend construction for cfg.
func NewResources(cfg *config.Config, logger *zap.Logger) *Resources {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resources{cfg: cfg, logger: logger}
}

// Firebase initialises the Firebase app on first use.
func (r *Resources) Firebase(ctx context.Context) (*firebase.App, error) {
	r.fbOnce.Do(func() {
		r.fbApp, r.fbErr = firebase.New(ctx, r.cfg.Firebase)
	})
	return r.fbApp, r.fbErr
}

// OpenStore connects the configured record store backend.
func (r *Resources) OpenStore(ctx context.Context) (service.StudentStore, error) {
	switch r.cfg.Store.Driver {
	case config.StoreMemory:
		r.logger.Warn("using in-memory student store; records are lost on exit")
		return repository.NewMemoryStudentRepository(), nil

	case config.StoreFirestore:
		app, err := r.Firebase(ctx)
		if err != nil {
			return nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client.Close)
		return repository.NewFirestoreStudentRepository(client, r.cfg.Store.Collection, r.logger), nil

	case config.StoreMongo:
		client, db, err := database.NewMongo(ctx, r.cfg.Mongo)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func() error { return client.Disconnect(context.Background()) })
		return repository.NewMongoStudentRepository(db.Collection(r.cfg.Store.Collection), r.logger), nil

	case config.StorePostgres:
		db, err := database.NewPostgres(r.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r.closers = append(r.closers, db.Close)
		repo := repository.NewStudentRepository(db, database.PostgresDSN(r.cfg.Database), r.cfg.Database.NotifyChannel, r.logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", r.cfg.Store.Driver)
}

// WithCache puts the Redis point-read cache in front of store when enabled. A
// Redis outage at startup degrades to the bare store.
func (r *Resources) WithCache(ctx context.Context, store service.StudentStore, metrics *service.MetricsService) service.StudentStore {
	if !r.cfg.Cache.Enabled {
		return store
	}
	client, err := cache.NewRedis(ctx, r.cfg.Redis)
	if err != nil {
		r.logger.Warn("student cache disabled", zap.Error(err))
		return store
	}
	repo := repository.NewCacheRepository(client, cacheKeyPrefix, r.logger)
	r.closers = append(r.closers, repo.Close)

	// Entries written by a previous process may predate writes made since.
	if err := repo.DeleteByPattern(ctx, "students:*"); err != nil {
		r.logger.Warn("flush stale student cache", zap.Error(err))
	}

	cacheSvc := service.NewCacheService(repo, metrics, r.cfg.Cache.TTL, r.logger, true)
	return service.NewCachedStudentStore(store, cacheSvc, r.cfg.Cache.TTL, r.logger)
}

// Verifier builds the bearer token verifier. With the firebase provider it also
// returns the account service backed by the same auth client.
func (r *Resources) Verifier(ctx context.Context, validate *validator.Validate) (service.TokenVerifier, *service.AccountService, error) {
	switch r.cfg.Auth.Provider {
	case config.AuthFirebase:
		app, err := r.Firebase(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, nil, err
		}
		return service.NewFirebaseVerifier(client), service.NewAccountService(client, validate, r.logger), nil
	case config.AuthJWT:
		return service.NewJWTVerifier(r.cfg.Auth.JWTSecret, r.cfg.Auth.JWTIssuer), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown auth provider %q", r.cfg.Auth.Provider)
}

// Close releases every opened client in reverse order.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close resource", zap.Error(err))
		}
	}
	r.closers = nil
}
