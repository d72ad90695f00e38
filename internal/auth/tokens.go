package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims are the JWT claims carried by both access and refresh tokens. The
// two differ only in expiry window; the wire format is identical.
type Claims struct {
	Permissions []string `json:"permissions,omitempty"`
	LoginType   string   `json:"login_type,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an access/refresh pair minted together at login or refresh.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessJTI        string
	RefreshJTI       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer mints and verifies HS256-signed token pairs. Verification pins the
// signing method so tokens signed with any other algorithm are rejected.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
	}
}

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. An empty secret is a configuration error;
// callers treat it as fatal at startup.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	i := &Issuer{
		secret:     []byte(secret),
		issuer:     "vyhan",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// ExtraClaims is the caller-supplied claim payload stamped into both tokens.
type ExtraClaims struct {
	Permissions []string
	LoginType   string
}

// IssuePair mints a fresh access/refresh pair for the subject. Each token
// carries its own collision-resistant jti.
func (i *Issuer) IssuePair(subject string, extra ExtraClaims) (TokenPair, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return TokenPair{}, errors.New("auth: subject is required")
	}
	now := i.now().UTC()

	accessJTI := uuid.NewString()
	accessExp := now.Add(i.accessTTL)
	access, err := i.sign(subject, accessJTI, now, accessExp, extra)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshJTI := uuid.NewString()
	refreshExp := now.Add(i.refreshTTL)
	refresh, err := i.sign(subject, refreshJTI, now, refreshExp, extra)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(subject, jti string, now, exp time.Time, extra ExtraClaims) (string, error) {
	claims := Claims{
		Permissions: extra.Permissions,
		LoginType:   extra.LoginType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse decodes and verifies a token. The error distinguishes undecodable
// input (ErrMalformedToken) from a valid structure that fails signature,
// issuer, or required-claim checks (ErrInvalidToken) and from natural expiry
// (ErrTokenExpired). Revocation is checked separately by the caller.
func (i *Issuer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		default:
			return nil, ErrInvalidToken
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != i.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
