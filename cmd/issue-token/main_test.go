package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestRunIssuesVerifiableToken(t *testing.T) {
	getenv := env(map[string]string{
		"STOREFRONT_JWT_SECRET":   "dev-secret",
		"STOREFRONT_JWT_AUDIENCE": "storefront-api",
	})
	var out bytes.Buffer

	require.NoError(t, run([]string{"-sub=user-42", "-role=admin"}, getenv, &out))

	provider, err := auth.NewHSProvider("dev-secret", "storefront", "storefront-api")
	require.NoError(t, err)
	claims, err := provider.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, string(domain.RoleAdmin), claims.Role)
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-sub=u1", "-secret=flag-secret", "-iss=custom"}, env(map[string]string{
		"STOREFRONT_JWT_SECRET": "env-secret",
	}))
	require.NoError(t, err)
	assert.Equal(t, "flag-secret", opts.secret)
	assert.Equal(t, "custom", opts.issuer)
	assert.Equal(t, domain.RoleUser, opts.role)
	assert.Equal(t, defaultTTL, opts.ttl)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing subject", nil, "-sub is required"},
		{"bad role", []string{"-sub=u1", "-role=owner"}, "role"},
		{"bad ttl", []string{"-sub=u1", "-ttl=-1m"}, "ttl must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args, env(nil))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRunRequiresSecret(t *testing.T) {
	err := run([]string{"-sub=u1"}, env(nil), &bytes.Buffer{})
	assert.ErrorIs(t, err, auth.ErrSecretRequired)
}
