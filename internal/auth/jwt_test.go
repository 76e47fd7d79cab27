package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHSProvider_SignAndVerify(t *testing.T) {
	t.Parallel()

	p, err := NewHSProvider("secret", "storefront", "storefront-api")
	require.NoError(t, err)

	token, exp, err := p.Sign("user-1", "ADMIN", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestHSProvider_Rejects(t *testing.T) {
	t.Parallel()

	p, err := NewHSProvider("secret", "storefront", "storefront-api")
	require.NoError(t, err)
	valid, _, err := p.Sign("user-1", "USER", time.Hour)
	require.NoError(t, err)

	otherKey, err := NewHSProvider("other", "storefront", "storefront-api")
	require.NoError(t, err)
	forged, _, err := otherKey.Sign("user-1", "USER", time.Hour)
	require.NoError(t, err)

	otherAudience, err := NewHSProvider("secret", "storefront", "someone-else")
	require.NoError(t, err)
	wrongAudience, _, err := otherAudience.Sign("user-1", "USER", time.Hour)
	require.NoError(t, err)

	expired, err := NewHSProvider("secret", "storefront", "storefront-api")
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := expired.Sign("user-1", "USER", time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":        "not-a-token",
		"wrong key":      forged,
		"wrong audience": wrongAudience,
		"expired":        stale,
		"truncated":      valid[:len(valid)-3],
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Verify(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestNewHSProvider_RequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewHSProvider("  ", "", "")
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc.def.ghi", token: "abc.def.ghi", ok: true},
		{header: "bearer \"abc.def.ghi\"", token: "abc.def.ghi", ok: true},
		{header: "Basic dXNlcjpwYXNz", ok: false},
		{header: "Bearer ", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}
