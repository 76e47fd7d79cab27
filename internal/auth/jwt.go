// Package auth выпускает и проверяет HS256 bearer-токены.
// Subject токена: id пользователя в основном хранилище.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken: токен не прошёл проверку подписи, срока или аудитории.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSecretRequired: не задан ключ подписи.
	ErrSecretRequired = errors.New("jwt secret is required")
)

// Claims: проверенные данные токена.
type Claims struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type customClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// HSProvider подписывает и проверяет токены общим секретом.
type HSProvider struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewHSProvider(secret, issuer, audience string) (*HSProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}
	return &HSProvider{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// Sign выпускает токен для пользователя. Используется dev-утилитой и тестами.
func (p *HSProvider) Sign(userID, role string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	now := p.now()
	exp := now.Add(ttl)

	claims := customClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify проверяет подпись, срок действия, издателя и аудиторию.
func (p *HSProvider) Verify(token string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &customClaims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	cc, ok := parsed.Claims.(*customClaims)
	if !ok || !parsed.Valid || cc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: cc.Subject, Role: cc.Role, ExpiresAt: cc.ExpiresAt.Time}, nil
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.Trim(strings.TrimSpace(token), `"'`)
	return token, token != ""
}
