// turfctl drives the turf-booking session from a terminal: log in, register,
// verify, reset a password, inspect the stored session and make authenticated
// API calls. The session persists between invocations in the configured
// storage backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/turfbook/turf-client/internal/app"
	"github.com/turfbook/turf-client/internal/config"
)

// command is one turfctl subcommand
type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{name: "login", args: "--email E --password P", summary: "log in and store the session", run: loginCommand},
	{name: "register", args: "--name N --email E --password P [--phone P]", summary: "create an account and send a verification code", run: registerCommand},
	{name: "verify", args: "--otp CODE [--email E]", summary: "confirm the verification code and log in", run: verifyCommand},
	{name: "forgot", args: "--email E", summary: "request a password reset link", run: forgotCommand},
	{name: "reset", args: "--token T --password P", summary: "set a new password with a reset token and log in", run: resetCommand},
	{name: "logout", summary: "clear the stored session", run: logoutCommand},
	{name: "whoami", summary: "show the stored session", run: whoamiCommand},
	{name: "get", args: "PATH", summary: "GET an API path with the session's bearer token", run: getCommand},
}

// env is what a command runs against
type env struct {
	app *app.App
	out io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var configPath string
	flagSet := pflag.NewFlagSet("turfctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $TURF_CONFIG_FILE)")
	flagSet.Usage = func() { printHelp(out, flagSet) }
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(out, flagSet)
		return nil
	}
	cmd, ok := findCommand(rest[0])
	if !ok {
		printHelp(out, flagSet)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := &terminal{out: out}
	a, err := app.New(ctx, cfg,
		app.WithNavigator(ui),
		app.WithNotifier(ui),
		app.WithSessionExpiredHandler(ui.sessionExpired))
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, &env{app: a, out: out}, rest[1:])
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(out, "Usage: turfctl [--config FILE] <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-9s %-45s %s\n", c.name, c.args, c.summary)
	}
	fmt.Fprintf(out, "\nFlags:\n%s", flagSet.FlagUsages())
}
