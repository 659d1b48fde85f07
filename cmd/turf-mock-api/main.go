// turf-mock-api serves the turf-booking auth API in memory for local
// development of the session client. OTPs and reset tokens are logged
// instead of emailed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/turfbook/turf-client/internal/app"
	"github.com/turfbook/turf-client/internal/config"
	"github.com/turfbook/turf-client/internal/fakebackend"
	"github.com/turfbook/turf-client/storage"
	"github.com/turfbook/turf-client/users"
)

const purgeInterval = time.Minute

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		addr       string
		prefix     string
		redisAddr  string
		configPath string
		seeds      []string
	)
	flagSet := pflag.NewFlagSet("turf-mock-api", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", ":5000", "listen address")
	flagSet.StringVar(&prefix, "prefix", "/api/v1", "path prefix the API is served under")
	flagSet.StringVar(&redisAddr, "redis", "", "keep one-time codes in this redis instead of memory")
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $TURF_CONFIG_FILE)")
	flagSet.StringArrayVar(&seeds, "seed", nil, "verified account as role:email:password (repeatable)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.GetLogLevel(), os.Stderr)

	options := []fakebackend.Option{fakebackend.WithLogger(logger)}
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer redisClient.Close()
		repo, err := storage.NewRedisRepo(redisClient, storage.WithPrefix("turf-mock"), storage.WithTTL(cfg.GetPasswordResetExpiry()))
		if err != nil {
			return err
		}
		options = append(options, fakebackend.WithCodeRepo(repo))
	}

	backend, err := fakebackend.New(cfg, "turf-mock-api", options...)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if err := seedAccount(backend, seed, logger); err != nil {
			return err
		}
	}

	displayAppname("Turf Mock API")

	mux := http.NewServeMux()
	mux.Handle(prefix+"/", http.StripPrefix(prefix, backend))
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go purgeRevoked(ctx, backend)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("prefix", prefix).Msg("Mock API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("server.ListenAndServe %w", err)
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// seedAccount parses role:email:password
func seedAccount(backend *fakebackend.Backend, seed string, logger zerolog.Logger) error {
	parts := strings.SplitN(seed, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("invalid --seed %q, want role:email:password", seed)
	}
	role, err := users.ParseRole(parts[0])
	if err != nil {
		return fmt.Errorf("invalid --seed %q: %w", seed, err)
	}
	user, err := backend.Seed(users.User{Email: parts[1], Role: role}, parts[2])
	if err != nil {
		return err
	}
	logger.Info().Str("email", user.Email).Str("role", string(user.Role)).Msg("Seeded account")
	return nil
}

func purgeRevoked(ctx context.Context, backend *fakebackend.Backend) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			backend.PurgeRevoked()
		}
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
