package helpers

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig is the server-side token configuration. All string fields are required.
type JWTConfig struct {
	SecretKey string
	Issuer    string
	Audience  string
	TTL       time.Duration
}

// JWTManager issues and validates HS256 identity tokens.
type JWTManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// JWTOption customises a JWTManager.
type JWTOption func(*JWTManager)

// WithJWTClock replaces the wall clock used for issuing and validating.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) { m.now = now }
}

// NewJWTManager fails when the signing key, issuer or audience is missing.
// Callers treat that error as fatal configuration.
func NewJWTManager(cfg JWTConfig, opts ...JWTOption) (*JWTManager, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("jwt secret key not configured")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("jwt issuer not configured")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("jwt audience not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	m := &JWTManager{
		secret:   []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Identity is the set of user attributes embedded in a token.
type Identity struct {
	ID              string
	Username        string
	Email           string
	IsActive        bool
	IsEmailVerified bool
}

// Token is a signed bearer credential and the instant it stops being valid.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Claims struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	IsActive        bool   `json:"is_active"`
	IsEmailVerified bool   `json:"is_email_verified"`
	jwt.RegisteredClaims
}

// Identity returns the identity fields carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		ID:              c.UserID,
		Username:        c.Username,
		Email:           c.Email,
		IsActive:        c.IsActive,
		IsEmailVerified: c.IsEmailVerified,
	}
}

func (m *JWTManager) Issue(id Identity) (Token, error) {
	now := m.now()
	exp := jwt.NewNumericDate(now.Add(m.ttl))
	claims := &Claims{
		UserID:          id.ID,
		Username:        id.Username,
		Email:           id.Email,
		IsActive:        id.IsActive,
		IsEmailVerified: id.IsEmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			ExpiresAt: exp,
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(m.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: s, ExpiresAt: exp.Time}, nil
}

// Validate checks signature, issuer, audience and expiry with no leeway.
// Any failure yields (nil, false); the cause is deliberately not exposed.
func (m *JWTManager) Validate(tokenStr string) (*Claims, bool) {
	if tokenStr == "" {
		return nil, false
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	claims := &Claims{}
	tkn, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !tkn.Valid || claims.UserID == "" {
		return nil, false
	}
	return claims, true
}
