package auth

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/turfbook/turf-client/client"
	"github.com/turfbook/turf-client/users"
)

// APIClient dispatches requests to the backend. *client.Client satisfies it.
type APIClient interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// SessionStore is the part of the token store the Service writes. *sessions.Store satisfies it.
type SessionStore interface {
	AccessToken() string
	RefreshToken() string
	Login(ctx context.Context, user *users.User, accessToken, refreshToken string) error
	Logout(ctx context.Context) error
}

// Navigator moves the user to a location after an operation
type Navigator interface {
	Navigate(location string)
}

// NavigatorFunc adapts a function to a Navigator
type NavigatorFunc func(location string)

func (f NavigatorFunc) Navigate(location string) {
	f(location)
}

// Notifier shows the user the outcome of an operation
type Notifier interface {
	Success(message string)
	Error(message string)
}

// logNotifier is used when no Notifier is configured
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) Success(message string) {
	n.logger.Info().Msg(message)
}

func (n logNotifier) Error(message string) {
	n.logger.Error().Msg(message)
}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}
