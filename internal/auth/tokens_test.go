package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T, opts ...IssuerOption) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("test-secret", opts...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func TestIssuePairAndParse(t *testing.T) {
	issuer := newTestIssuer(t, WithIssuerName("test-issuer"))

	pair, err := issuer.IssuePair("user-42", ExtraClaims{
		Permissions: []string{string(PermBranchAdmin)},
		LoginType:   LoginTypeBranch,
	})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected both tokens")
	}
	if pair.AccessJTI == pair.RefreshJTI {
		t.Fatalf("jtis must be distinct, got %s twice", pair.AccessJTI)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("refresh expiry %v should exceed access expiry %v", pair.RefreshExpiresAt, pair.AccessExpiresAt)
	}

	claims, err := issuer.Parse(pair.Access)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.ID != pair.AccessJTI {
		t.Fatalf("unexpected jti: %s", claims.ID)
	}
	if claims.LoginType != LoginTypeBranch {
		t.Fatalf("unexpected login type: %s", claims.LoginType)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != string(PermBranchAdmin) {
		t.Fatalf("permissions not preserved: %v", claims.Permissions)
	}
}

func TestParseRejectsMalformedToken(t *testing.T) {
	issuer := newTestIssuer(t)
	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := issuer.Parse(token); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Parse(%q) = %v, want ErrMalformedToken", token, err)
		}
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewIssuer("other-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	pair, err := other.IssuePair("user-1", ExtraClaims{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := issuer.Parse(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsUnexpectedAlgorithm(t *testing.T) {
	issuer := newTestIssuer(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vyhan",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			ID:        "jti-1",
		},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	stale := newTestIssuer(t, WithClock(func() time.Time { return past }))
	pair, err := stale.IssuePair("user-1", ExtraClaims{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	current := newTestIssuer(t)
	if _, err := current.Parse(pair.Access); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
