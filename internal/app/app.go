// Package app wires the session client together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/turfbook/turf-client/auth"
	"github.com/turfbook/turf-client/client"
	"github.com/turfbook/turf-client/internal/config"
	"github.com/turfbook/turf-client/sessions"
	"github.com/turfbook/turf-client/storage"
)

// App holds the wired session components
type App struct {
	Config config.Config
	Logger zerolog.Logger
	Repo   storage.Repo
	Store  *sessions.Store
	Client *client.Client
	Auth   *auth.Service

	closers []io.Closer
}

// Option defines a function type to modify how the App is wired.
type Option func(*options)

type options struct {
	logger    *zerolog.Logger
	repo      storage.Repo
	navigator auth.Navigator
	notifier  auth.Notifier
	onExpired func(location string)
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithRepo bypasses the configured storage backend
func WithRepo(repo storage.Repo) Option {
	return func(o *options) {
		o.repo = repo
	}
}

func WithNavigator(navigator auth.Navigator) Option {
	return func(o *options) {
		o.navigator = navigator
	}
}

func WithNotifier(notifier auth.Notifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// WithSessionExpiredHandler is called after a failed refresh has cleared the session
func WithSessionExpiredHandler(fn func(location string)) Option {
	return func(o *options) {
		o.onExpired = fn
	}
}

// New builds the storage repo, session store, HTTP client and auth service for cfg
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("[app.New] config is required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: NewLogger(cfg.GetLogLevel(), os.Stderr)}
	if o.logger != nil {
		a.Logger = *o.logger
	}

	a.Repo = o.repo
	if a.Repo == nil {
		repo, closer, err := NewRepo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Repo = repo
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	store, err := sessions.NewStore(ctx, a.Repo,
		sessions.WithKey(cfg.GetSessionKey()),
		sessions.WithLogger(a.Logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("[app.New] %w", err)
	}
	a.Store = store

	clientOptions := []client.Option{
		client.WithLogger(a.Logger),
		client.WithRefreshDeduplication(cfg.GetDedupeRefresh()),
	}
	if o.onExpired != nil {
		clientOptions = append(clientOptions, client.WithSessionExpiredHandler(o.onExpired))
	}
	a.Client, err = client.New(client.Config{
		BaseURL: cfg.GetAPIBaseURL(),
		Timeout: cfg.GetRequestTimeout(),
	}, store, clientOptions...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("[app.New] %w", err)
	}

	a.Auth, err = auth.NewService(auth.Deps{
		Client:    a.Client,
		Store:     store,
		Pending:   a.Repo,
		Navigator: o.navigator,
		Notifier:  o.notifier,
	}, auth.WithLogger(a.Logger), auth.WithServerLogout(cfg.GetServerLogout()))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("[app.New] %w", err)
	}

	return a, nil
}

// Close waits for background logout calls and releases storage connections
func (a *App) Close() error {
	if a.Auth != nil {
		a.Auth.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewRepo opens the configured storage backend. The closer is nil when
// nothing needs releasing.
func NewRepo(ctx context.Context, cfg config.StorageConfig) (storage.Repo, io.Closer, error) {
	switch cfg.GetStorageBackend() {
	case config.StorageMemory:
		return storage.NewInMemoryRepo(), nil, nil

	case config.StorageRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.GetRedisAddr(),
			DB:   cfg.GetRedisDB(),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("[app.NewRepo] redis %s: %w", cfg.GetRedisAddr(), err)
		}
		repo, err := storage.NewRedisRepo(redisClient)
		if err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("[app.NewRepo] %w", err)
		}
		return repo, redisClient, nil

	default:
		var fileOptions []storage.FileRepoOption
		if passphrase := cfg.GetStoragePassphrase(); passphrase != "" {
			fileOptions = append(fileOptions, storage.WithPassphrase(passphrase))
		}
		repo, err := storage.NewFileRepo(cfg.GetStorageDir(), fileOptions...)
		if err != nil {
			return nil, nil, fmt.Errorf("[app.NewRepo] %w", err)
		}
		return repo, nil, nil
	}
}

// NewLogger returns a console logger at level. Unknown levels fall back to info.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
