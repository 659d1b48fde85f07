package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/turfbook/turf-client/auth"
	"github.com/turfbook/turf-client/guard"
	"github.com/turfbook/turf-client/internal/config"
	"github.com/turfbook/turf-client/sessions"
)

// Server serves the application's route table for the locally held session.
// Protected routes go through the route guard before their handler runs.
type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	store  *sessions.Store
	auth   *auth.Service
	guard  *guard.Guard
	logger zerolog.Logger
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithGuard replaces the default route guard
func WithGuard(g *guard.Guard) ServerOption {
	return func(s *Server) {
		s.guard = g
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(config config.Config, store *sessions.Store, authService *auth.Service, options ...ServerOption) (*Server, error) {
	if config == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if store == nil {
		return nil, errors.New("[Server New] session store is required")
	}
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}

	s := &Server{
		env:    config.GetEnv(),
		mux:    http.NewServeMux(),
		config: config,
		store:  store,
		auth:   authService,
		guard:  guard.New(),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	s.logger.Info().Msgf("[%-19s] %s", displayMethod, path)
}
