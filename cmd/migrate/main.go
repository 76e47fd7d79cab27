// Команда migrate применяет, откатывает и показывает встроенные миграции PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	dsnEnv         = "STOREFRONT_POSTGRES_DSN"
)

var errDSNRequired = errors.New(dsnEnv + " (or -dsn) is required")

type options struct {
	direction string
	steps     int
	dsn       string
}

// migrator: часть postgres.Store, которой пользуется команда.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
	Close() error
}

type opener func(ctx context.Context, dsn string) (migrator, error)

func openPostgres(ctx context.Context, dsn string) (migrator, error) {
	return postgres.Open(ctx, dsn)
}

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Getenv, os.Stdout, openPostgres); err != nil {
		fail("%v", err)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+dsnEnv+")")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	switch opts.direction {
	case "up", "down", "status":
	default:
		return opts, fmt.Errorf("unsupported direction %q", opts.direction)
	}
	if opts.steps < 0 {
		return opts, fmt.Errorf("steps must be >= 0, got %d", opts.steps)
	}

	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(dsnEnv))
	}
	if opts.dsn == "" {
		return opts, errDSNRequired
	}
	return opts, nil
}

func run(args []string, getenv func(string) string, out io.Writer, open opener) error {
	opts, err := parseOptions(args, getenv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d pending=%d\n", opts.direction, state.Version, state.Applied, state.Pending)
	return nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
