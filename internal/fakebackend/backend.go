// Package fakebackend is a development stand-in for the turf-booking REST API.
// It serves the auth endpoints the session client talks to, issuing HS256
// access tokens and opaque refresh tokens.
package fakebackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/turfbook/turf-client/internal/config"
	"github.com/turfbook/turf-client/storage"
	"github.com/turfbook/turf-client/token"
	"github.com/turfbook/turf-client/token/jwt"
	"github.com/turfbook/turf-client/token/keys"
	"github.com/turfbook/turf-client/token/refresh"
	refreshrepofake "github.com/turfbook/turf-client/token/refresh/repofake"
	"github.com/turfbook/turf-client/users"
	fakeuserrepo "github.com/turfbook/turf-client/users/repofake"
)

const (
	// RefreshCookie holds the refresh token for cookie-jar clients
	RefreshCookie = "refreshToken"
	// HeaderRefreshToken carries the refresh token for clients without a cookie jar
	HeaderRefreshToken = "X-Refresh-Token"
)

// CodeKind names the one-time secret handed to a CodeSink
type CodeKind string

const (
	CodeOTP   CodeKind = "otp"
	CodeReset CodeKind = "reset"
)

// CodeSink receives one-time codes that a real backend would email
type CodeSink func(kind CodeKind, email, code string)

// Backend is an in-process REST API with the turf-booking auth contract
type Backend struct {
	mux      *http.ServeMux
	config   config.TokenConfig
	accounts users.AccountRepo
	refresh  *refresh.Manager
	creator  *jwt.Creator
	inspect  *jwt.Inspector
	revoked  token.RevokedTokenCache
	codes    *codeStore
	sink     CodeSink
	logger   zerolog.Logger
}

// Option defines a function type to modify the Backend instance.
type Option func(*Backend)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithAccountRepo replaces the in-memory account store
func WithAccountRepo(repo users.AccountRepo) Option {
	return func(b *Backend) {
		b.accounts = repo
	}
}

// WithCodeRepo stores one-time codes in repo instead of memory
func WithCodeRepo(repo storage.Repo) Option {
	return func(b *Backend) {
		b.codes.repo = repo
	}
}

// WithCodeSink delivers OTPs and reset tokens to fn. Codes are logged when no sink is set.
func WithCodeSink(fn CodeSink) Option {
	return func(b *Backend) {
		b.sink = fn
	}
}

// WithNowTime sets the clock for one-time code expiry (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(b *Backend) {
		b.codes.nowFunc = nowFunc
	}
}

func New(cfg config.TokenConfig, issuer string, options ...Option) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("[fakebackend.New] token config is required")
	}
	signer, err := keys.NewSecretSigner(issuer, cfg.GetTokenSecret())
	if err != nil {
		return nil, fmt.Errorf("[fakebackend.New] %w", err)
	}

	revoked := token.NewInMemoryRevokedTokenCache()
	b := &Backend{
		mux:      http.NewServeMux(),
		config:   cfg,
		accounts: fakeuserrepo.NewFakeAccountRepo(),
		refresh:  refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), cfg),
		creator:  jwt.NewCreator(issuer, cfg.GetAccessTokenExpiry(), signer),
		inspect:  jwt.NewInspector(signer, revoked),
		revoked:  revoked,
		codes:    newCodeStore(storage.NewInMemoryRepo()),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	if b.sink == nil {
		b.sink = b.logCode
	}

	b.initRoutes()
	return b, nil
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// Seed adds a verified account, replacing any account with the same email
func (b *Backend) Seed(user users.User, password string) (*users.User, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("[Backend.Seed] hash password: %w", err)
	}
	if existing, err := b.accounts.GetByEmail(user.Email); err == nil {
		user.ID = existing.User.ID
	}
	if user.Role == "" {
		user.Role = users.RoleUser
	}

	account := &users.Account{User: user, PasswordHash: hash, Verified: true}
	if err := b.accounts.Upsert(account); err != nil {
		return nil, fmt.Errorf("[Backend.Seed] %w", err)
	}
	return account.User.Clone(), nil
}

// PurgeRevoked drops revoked access token IDs whose tokens have expired and
// returns how many were dropped
func (b *Backend) PurgeRevoked() int {
	removed := b.revoked.Cleanup()
	if removed > 0 {
		b.logger.Debug().Int("removed", removed).Int("remaining", b.revoked.Len()).Msg("Purged revoked access tokens")
	}
	return removed
}

func (b *Backend) logCode(kind CodeKind, email, code string) {
	b.logger.Info().Str("kind", string(kind)).Str("email", email).Str("code", code).Msg("One-time code issued")
}

// issueTokens mints an access token and rotates the user's refresh token
func (b *Backend) issueTokens(user *users.User) (string, string, error) {
	accessToken, err := b.creator.CreateAccessToken(user)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := b.refresh.Create(user.ID)
	if err != nil {
		return "", "", err
	}
	return *accessToken, *refreshToken, nil
}

// authenticatedUser resolves the bearer token to its account
func (b *Backend) authenticatedUser(r *http.Request) (*users.User, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, errors.New("missing bearer token")
	}
	info, err := b.inspect.Introspect(raw)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, errors.New("access token expired or revoked")
	}
	account, err := b.accounts.GetByID(info.Sub)
	if err != nil {
		return nil, err
	}
	return &account.User, nil
}

func (b *Backend) issueCode(ctx context.Context, kind CodeKind, email string) error {
	var (
		code string
		err  error
	)
	switch kind {
	case CodeOTP:
		code, err = b.codes.issueOTP(ctx, email, b.config.GetOtpLength(), b.config.GetOtpExpiry())
	case CodeReset:
		code, err = b.codes.issueResetToken(ctx, email, b.config.GetPasswordResetExpiry())
	default:
		err = fmt.Errorf("unknown code kind %q", kind)
	}
	if err != nil {
		return err
	}
	b.sink(kind, email, code)
	return nil
}
