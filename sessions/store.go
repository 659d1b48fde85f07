package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/turfbook/turf-client/storage"
	"github.com/turfbook/turf-client/users"
	"golang.org/x/oauth2"
)

// Store is the single source of truth for identity and tokens.
// Reads are synchronous and never touch storage; every mutation writes
// through to the Repo so a restarted process reconstructs the same session.
type Store struct {
	repo    storage.Repo
	key     string
	logger  zerolog.Logger
	nowTime func() time.Time

	writeLock sync.Mutex // serialises mutate+persist so storage sees mutations in order
	lock      sync.RWMutex
	session   Session

	listenersLock sync.Mutex
	listeners     map[uint64]func(Session)
	nextListener  uint64
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithKey overrides the storage key the session is persisted under
func WithKey(key string) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// NewStore creates a Store and rehydrates it from repo. A stored value that
// cannot be decoded is discarded and the store starts empty.
func NewStore(ctx context.Context, repo storage.Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] storage repo is required")
	}

	s := &Store{
		repo:    repo,
		key:     storage.KeySession,
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := storage.ValidateKey(s.key); err != nil {
		return nil, fmt.Errorf("[NewStore] %w", err)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	data, err := s.repo.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case errors.Is(err, storage.ErrCorrupt):
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Discarding unreadable session")
		return s.repo.Delete(ctx, s.key)
	case err != nil:
		return fmt.Errorf("[Store.load] %w", err)
	}

	var stored Session
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Discarding undecodable session")
		return s.repo.Delete(ctx, s.key)
	}

	s.session = stored.normalise()
	s.logger.Debug().Bool("authenticated", s.session.IsAuthenticated).Msg("Session restored")
	return nil
}

// Login replaces identity and both tokens and marks the session authenticated
func (s *Store) Login(ctx context.Context, user *users.User, accessToken, refreshToken string) error {
	if user == nil {
		return errors.New("[Store.Login] user is required")
	}
	if accessToken == "" {
		return errors.New("[Store.Login] access token is required")
	}
	return s.mutate(ctx, func(Session) Session {
		return Session{
			User:         user.Clone(),
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		}
	})
}

// Logout clears every field and purges the persisted copy
func (s *Store) Logout(ctx context.Context) error {
	return s.mutate(ctx, func(Session) Session {
		return Session{}
	})
}

// SetTokens replaces only the token pair, leaving the user untouched.
// Used after a silent refresh.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	return s.mutate(ctx, func(current Session) Session {
		current.AccessToken = accessToken
		current.RefreshToken = refreshToken
		return current
	})
}

// ReplaceAccessToken stores a refreshed access token, but only while the session
// is still authenticated with refreshToken. It reports whether the token was
// stored; false means the session was logged out or replaced meanwhile.
func (s *Store) ReplaceAccessToken(ctx context.Context, refreshToken, accessToken string) (bool, error) {
	if accessToken == "" {
		return false, errors.New("[Store.ReplaceAccessToken] access token is required")
	}
	applied := false
	err := s.mutateIf(ctx, func(current Session) (Session, bool) {
		if !current.IsAuthenticated || current.RefreshToken != refreshToken {
			return current, false
		}
		applied = true
		current.AccessToken = accessToken
		return current, true
	})
	return applied, err
}

func (s *Store) mutate(ctx context.Context, fn func(Session) Session) error {
	return s.mutateIf(ctx, func(current Session) (Session, bool) {
		return fn(current), true
	})
}

// mutateIf applies fn under the write lock. Nothing is stored or notified when
// fn returns false.
func (s *Store) mutateIf(ctx context.Context, fn func(Session) (Session, bool)) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	s.lock.Lock()
	next, ok := fn(s.session)
	if !ok {
		s.lock.Unlock()
		return nil
	}
	next = next.normalise()
	next.UpdatedAt = s.nowTime().UTC()
	if next.Empty() {
		next = Session{}
	}
	s.session = next
	snapshot := next.clone()
	s.lock.Unlock()

	err := s.persist(ctx, snapshot)
	s.notify(snapshot)
	return err
}

func (s *Store) persist(ctx context.Context, snapshot Session) error {
	if snapshot.Empty() {
		if err := s.repo.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("[Store.persist] delete: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("[Store.persist] marshal: %w", err)
	}
	if err := s.repo.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("[Store.persist] write: %w", err)
	}
	return nil
}

// Subscribe registers fn to be called with the new session after every mutation.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.listenersLock.Lock()
	defer s.listenersLock.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[uint64]func(Session))
	}
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.listenersLock.Lock()
		defer s.listenersLock.Unlock()
		delete(s.listeners, id)
	}
}

// ListenerCount returns the number of active subscriptions
func (s *Store) ListenerCount() int {
	s.listenersLock.Lock()
	defer s.listenersLock.Unlock()
	return len(s.listeners)
}

func (s *Store) notify(snapshot Session) {
	s.listenersLock.Lock()
	ids := slices.Sorted(maps.Keys(s.listeners))
	listeners := make([]func(Session), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersLock.Unlock()

	for _, fn := range listeners {
		fn(snapshot.clone())
	}
}

// Snapshot returns a copy of the current session
func (s *Store) Snapshot() Session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.clone()
}

func (s *Store) AccessToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.AccessToken
}

func (s *Store) RefreshToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.RefreshToken
}

func (s *Store) User() *users.User {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.User.Clone()
}

func (s *Store) IsAuthenticated() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.session.IsAuthenticated
}

// Token returns the token pair as an oauth2.Token, or nil when no access token is held
func (s *Store) Token() *oauth2.Token {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.session.AccessToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.session.AccessToken,
		RefreshToken: s.session.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.session.AccessTokenExpiry,
	}
}
