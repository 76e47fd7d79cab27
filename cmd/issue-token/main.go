// Команда issue-token выпускает HS256 bearer-токен для локальной разработки.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultTTL = time.Hour

type options struct {
	subject  string
	role     domain.Role
	ttl      time.Duration
	secret   string
	issuer   string
	audience string
}

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts options
		role string
	)
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.subject, "sub", "", "user id placed into the sub claim")
	fs.StringVar(&role, "role", string(domain.RoleUser), "USER or ADMIN")
	fs.DurationVar(&opts.ttl, "ttl", defaultTTL, "token lifetime")
	fs.StringVar(&opts.secret, "secret", "", "signing secret (fallback: STOREFRONT_JWT_SECRET)")
	fs.StringVar(&opts.issuer, "iss", "", "issuer (fallback: STOREFRONT_JWT_ISSUER, default storefront)")
	fs.StringVar(&opts.audience, "aud", "", "audience (fallback: STOREFRONT_JWT_AUDIENCE)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.subject = strings.TrimSpace(opts.subject)
	if opts.subject == "" {
		return opts, errors.New("-sub is required")
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return opts, err
	}
	opts.role = parsed
	if opts.ttl <= 0 {
		return opts, fmt.Errorf("ttl must be positive, got %s", opts.ttl)
	}

	if opts.secret == "" {
		opts.secret = getenv("STOREFRONT_JWT_SECRET")
	}
	if opts.issuer == "" {
		opts.issuer = getenv("STOREFRONT_JWT_ISSUER")
	}
	if opts.issuer == "" {
		opts.issuer = "storefront"
	}
	if opts.audience == "" {
		opts.audience = getenv("STOREFRONT_JWT_AUDIENCE")
	}
	return opts, nil
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	opts, err := parseOptions(args, getenv)
	if err != nil {
		return err
	}
	provider, err := auth.NewHSProvider(opts.secret, opts.issuer, opts.audience)
	if err != nil {
		return err
	}
	token, expires, err := provider.Sign(opts.subject, string(opts.role), opts.ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expires.Format(time.RFC3339))
	return nil
}
