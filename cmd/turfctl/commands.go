package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/turfbook/turf-client/auth"
)

// parseFlags parses args for cmd, reporting flags left out of required
func parseFlags(cmd string, args []string, setup func(*pflag.FlagSet), required ...string) (*pflag.FlagSet, error) {
	flagSet := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	setup(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range required {
		if !flagSet.Changed(name) {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing %s", cmd, strings.Join(missing, ", "))
	}
	return flagSet, nil
}

func loginCommand(ctx context.Context, env *env, args []string) error {
	var data auth.LoginData
	if _, err := parseFlags("login", args, func(f *pflag.FlagSet) {
		f.StringVar(&data.Email, "email", "", "account email")
		f.StringVar(&data.Password, "password", "", "account password")
	}, "email", "password"); err != nil {
		return err
	}
	_, err := env.app.Auth.Login(ctx, data)
	return reportValidation(env, err)
}

func registerCommand(ctx context.Context, env *env, args []string) error {
	var data auth.RegisterData
	if _, err := parseFlags("register", args, func(f *pflag.FlagSet) {
		f.StringVar(&data.Name, "name", "", "display name")
		f.StringVar(&data.Email, "email", "", "account email")
		f.StringVar(&data.Password, "password", "", "account password")
		f.StringVar(&data.Phone, "phone", "", "contact number")
	}, "name", "email", "password"); err != nil {
		return err
	}
	_, err := env.app.Auth.Register(ctx, data)
	return reportValidation(env, err)
}

func verifyCommand(ctx context.Context, env *env, args []string) error {
	var data auth.VerifyOtpData
	if _, err := parseFlags("verify", args, func(f *pflag.FlagSet) {
		f.StringVar(&data.OTP, "otp", "", "verification code")
		f.StringVar(&data.Email, "email", "", "email (default: the email awaiting verification)")
	}, "otp"); err != nil {
		return err
	}
	_, err := env.app.Auth.VerifyOtp(ctx, data)
	return reportValidation(env, err)
}

func forgotCommand(ctx context.Context, env *env, args []string) error {
	var data auth.ForgotPasswordData
	if _, err := parseFlags("forgot", args, func(f *pflag.FlagSet) {
		f.StringVar(&data.Email, "email", "", "account email")
	}, "email"); err != nil {
		return err
	}
	_, err := env.app.Auth.ForgotPassword(ctx, data)
	return reportValidation(env, err)
}

func resetCommand(ctx context.Context, env *env, args []string) error {
	var data auth.ResetPasswordData
	if _, err := parseFlags("reset", args, func(f *pflag.FlagSet) {
		f.StringVar(&data.Token, "token", "", "reset token from the email link")
		f.StringVar(&data.Password, "password", "", "new password")
	}, "token", "password"); err != nil {
		return err
	}
	_, err := env.app.Auth.ResetPassword(ctx, data)
	return reportValidation(env, err)
}

func logoutCommand(ctx context.Context, env *env, args []string) error {
	if _, err := parseFlags("logout", args, func(*pflag.FlagSet) {}); err != nil {
		return err
	}
	env.app.Auth.Logout(ctx)
	return nil
}

func whoamiCommand(ctx context.Context, env *env, args []string) error {
	if _, err := parseFlags("whoami", args, func(*pflag.FlagSet) {}); err != nil {
		return err
	}
	session := env.app.Store.Snapshot()
	if !session.IsAuthenticated {
		fmt.Fprintln(env.out, "Not logged in")
		return nil
	}
	fmt.Fprintf(env.out, "%s <%s> role=%s id=%s\n",
		session.User.DisplayName(), session.User.Email, session.User.Role, session.User.ID)
	if !session.AccessTokenExpiry.IsZero() {
		fmt.Fprintf(env.out, "access token expires %s\n", session.AccessTokenExpiry.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func getCommand(ctx context.Context, env *env, args []string) error {
	flagSet, err := parseFlags("get", args, func(*pflag.FlagSet) {})
	if err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("get: exactly one PATH is required")
	}

	resp, err := env.app.Client.Get(ctx, flagSet.Arg(0), nil)
	if err != nil {
		return err
	}
	if resp.Message != "" {
		fmt.Fprintln(env.out, resp.Message)
	}
	if len(resp.Data) > 0 {
		var pretty any
		if json.Unmarshal(resp.Data, &pretty) == nil {
			encoded, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintln(env.out, string(encoded))
		}
	}
	return nil
}

// reportValidation prints per-field messages, which are not sent to the notifier
func reportValidation(env *env, err error) error {
	var validation auth.ValidationErrors
	if !errors.As(err, &validation) {
		return err
	}
	for _, e := range validation {
		fmt.Fprintf(env.out, "  %s: %s\n", e.Field, e.Message)
	}
	return errors.New("invalid input")
}
