package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/postgres"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/config"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/middleware"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/database"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "set-token":
		return runAdminSetToken(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: oneseek-tuning admin <command> [options]

Commands:
  set-token   Set the API token required on admin endpoints
  help        Show this help message

Examples:
  oneseek-tuning admin set-token
  oneseek-tuning admin set-token --token s3cret
`)
}

func loadAdminStore() (database.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}

	return postgres.NewStore(pool), func() { pool.Close() }, nil
}

func runAdminSetToken(args []string) error {
	fs := flag.NewFlagSet("set-token", flag.ContinueOnError)
	token := fs.String("token", "", "API token (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	tok := *token
	if tok == "" {
		var err error
		tok, err = promptSecret("Token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		confirm, err := promptSecret("Confirm token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		if tok != confirm {
			return fmt.Errorf("tokens do not match")
		}
	}
	if tok == "" {
		return fmt.Errorf("token must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(tok), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	value, err := json.Marshal(string(hash))
	if err != nil {
		return fmt.Errorf("marshal hash: %w", err)
	}
	if err := store.UpsertSetting(context.Background(), middleware.SettingAdminTokenHash, value); err != nil {
		return fmt.Errorf("store token hash: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Admin token set.")
	return nil
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
