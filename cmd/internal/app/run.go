package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/heirloom.
// It returns an error instead of calling os.Exit to keep defers effective.
//
//	heirloom                        serve HTTP
//	heirloom create-user -email E   add a password user; the password is read
//	                                from HEIRLOOM_NEW_USER_PASSWORD
func Run(args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return a.Run(ctx)
	}
	defer func() { _ = a.Close() }()

	switch args[0] {
	case "create-user":
		return createUser(ctx, a, args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func createUser(ctx context.Context, a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "email of the new user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw := os.Getenv("HEIRLOOM_NEW_USER_PASSWORD")
	if *email == "" || pw == "" {
		return errors.New("create-user: -email and HEIRLOOM_NEW_USER_PASSWORD are required")
	}

	u, err := a.CreateUser(ctx, *email, pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, u.ID)
	return err
}
