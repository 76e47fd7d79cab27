// Команда reindex пересобирает поисковую проекцию в MongoDB из PostgreSQL.
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
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/search"
	"github.com/vladislavdragonenkov/storefront/internal/storage/mongosearch"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const defaultTimeout = 10 * time.Minute

type options struct {
	dsn      string
	mongoURI string
	database string
	drop     bool
	timeout  time.Duration
}

// target: источник и приёмник пересборки.
type target struct {
	repos domain.Repositories
	index domain.ProjectionStore
	// drop очищает проекцию перед пересборкой, может быть nil.
	drop  func(ctx context.Context) error
	close func()
}

type opener func(ctx context.Context, opts options) (*target, error)

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := run(os.Args[1:], os.Getenv, os.Stdout, openTarget); err != nil {
		log.WithError(err).Fatal("reindex failed")
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	opts := options{timeout: defaultTimeout}
	fs := flag.NewFlagSet("reindex", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: STOREFRONT_POSTGRES_DSN)")
	fs.StringVar(&opts.mongoURI, "mongo-uri", "", "MongoDB URI (fallback: STOREFRONT_MONGO_URI)")
	fs.StringVar(&opts.database, "mongo-db", "", "MongoDB database (fallback: STOREFRONT_MONGO_DATABASE, default storefront)")
	fs.BoolVar(&opts.drop, "drop", false, "drop projection collections before rebuilding")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	fallback := func(value *string, key, def string) {
		if *value = strings.TrimSpace(*value); *value == "" {
			*value = strings.TrimSpace(getenv(key))
		}
		if *value == "" {
			*value = def
		}
	}
	fallback(&opts.dsn, "STOREFRONT_POSTGRES_DSN", "")
	fallback(&opts.mongoURI, "STOREFRONT_MONGO_URI", "")
	fallback(&opts.database, "STOREFRONT_MONGO_DATABASE", "storefront")

	switch {
	case opts.dsn == "":
		return opts, errors.New("STOREFRONT_POSTGRES_DSN (or -dsn) is required")
	case opts.mongoURI == "":
		return opts, errors.New("STOREFRONT_MONGO_URI (or -mongo-uri) is required")
	case opts.timeout <= 0:
		return opts, fmt.Errorf("timeout must be positive, got %s", opts.timeout)
	}
	return opts, nil
}

func openTarget(ctx context.Context, opts options) (*target, error) {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	index, err := mongosearch.Connect(ctx, opts.mongoURI, opts.database)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &target{
		repos: store,
		index: index,
		drop:  index.Drop,
		close: func() {
			_ = index.Close(context.Background())
			_ = store.Close()
		},
	}, nil
}

func run(args []string, getenv func(string) string, out io.Writer, open opener) error {
	opts, err := parseOptions(args, getenv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	tgt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer tgt.close()

	if opts.drop && tgt.drop != nil {
		if err := tgt.drop(ctx); err != nil {
			return fmt.Errorf("drop projection: %w", err)
		}
	}

	projector := search.NewProjector(tgt.repos, tgt.index, search.WithLogger(log.WithField("component", "reindex")))
	stats, err := projector.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild projection: %w", err)
	}
	fmt.Fprintf(out, "reindex ok: categories=%d products=%d orders=%d carts=%d\n",
		stats.Categories, stats.Products, stats.Orders, stats.Carts)
	return nil
}
