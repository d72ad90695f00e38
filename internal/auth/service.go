package auth

import (
	"context"
	"fmt"
	"time"
)

// Login type discriminators declared by the client at login. An empty value
// skips the ownership check.
const (
	LoginTypeOrganization = "organization"
	LoginTypeBranch       = "branch"
)

// Credential is the read model the auth subsystem needs from the credential
// store: who the user is, how to verify them, and what they own.
type Credential struct {
	UserID       string
	Username     string
	PasswordHash string
	Permissions  PermissionSet
	// OwnedOrganizationID is set when the user is the owner of an
	// organization; OwnedBranchID when the user owns a branch.
	OwnedOrganizationID string
	OwnedBranchID       string
}

// CredentialStore is the durable user lookup boundary.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	Find(ctx context.Context, userID string) (*Credential, error)
}

// Service implements the login/refresh/logout protocol and per-request token
// authentication on top of the Issuer and the Revocation Registry.
type Service struct {
	creds    CredentialStore
	issuer   *Issuer
	registry Registry
}

// NewService wires the session protocol. All three collaborators are
// required; the registry is injected so its lifecycle stays with cmd wiring.
func NewService(creds CredentialStore, issuer *Issuer, registry Registry) (*Service, error) {
	if creds == nil {
		return nil, fmt.Errorf("auth: credential store is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("auth: issuer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("auth: revocation registry is required")
	}
	return &Service{creds: creds, issuer: issuer, registry: registry}, nil
}

// Login verifies the credential and, when a login type is declared, that the
// user owns a resource of that type. On success a fresh pair is issued with
// the permission snapshot and login type stamped into the claims.
func (s *Service) Login(ctx context.Context, username, password, loginType string) (TokenPair, error) {
	if username == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	cred, err := s.creds.FindByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	switch loginType {
	case LoginTypeOrganization:
		if cred.OwnedOrganizationID == "" {
			return TokenPair{}, ErrInvalidCredentials
		}
	case LoginTypeBranch:
		if cred.OwnedBranchID == "" {
			return TokenPair{}, ErrInvalidCredentials
		}
	}
	return s.issuer.IssuePair(cred.UserID, ExtraClaims{
		Permissions: cred.Permissions.Strings(),
		LoginType:   loginType,
	})
}

// Authenticate runs the per-request token state machine: signature and
// algorithm, then expiry, then revocation. The returned Identity carries the
// decoded claims for the permission guard and handlers.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	revoked, err := s.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return Identity{}, ErrTokenRevoked
	}
	return Identity{
		UserID:      claims.Subject,
		JTI:         claims.ID,
		LoginType:   claims.LoginType,
		Permissions: PermissionSetFromStrings(claims.Permissions),
	}, nil
}

// Refresh rotates a token pair. Both current tokens must be submitted; a
// revoked jti on either one means the pair was already rotated and the
// submission is a replay. Both jtis are revoked before the new pair is
// minted, so every refresh is a one-time full rotation.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (TokenPair, error) {
	accessClaims, err := s.issuer.Parse(accessToken)
	if err != nil {
		return TokenPair{}, err
	}
	refreshClaims, err := s.issuer.Parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	for _, claims := range []*Claims{accessClaims, refreshClaims} {
		revoked, err := s.registry.IsRevoked(ctx, claims.ID)
		if err != nil {
			return TokenPair{}, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			return TokenPair{}, ErrTokenRevoked
		}
	}

	// Revoke-then-issue. Issuance failure after revocation invalidates the
	// submitted pair rather than silently undoing the revocation; the
	// caller must log in again.
	if err := s.registry.Revoke(ctx, accessClaims.ID, expiryOf(accessClaims)); err != nil {
		return TokenPair{}, fmt.Errorf("revoke access jti: %w", err)
	}
	if err := s.registry.Revoke(ctx, refreshClaims.ID, expiryOf(refreshClaims)); err != nil {
		return TokenPair{}, fmt.Errorf("revoke refresh jti: %w", err)
	}

	cred, err := s.creds.Find(ctx, refreshClaims.Subject)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	return s.issuer.IssuePair(cred.UserID, ExtraClaims{
		Permissions: cred.Permissions.Strings(),
		LoginType:   refreshClaims.LoginType,
	})
}

// Logout revokes the presented access token's jti. The paired refresh token
// is deliberately left valid; see the session protocol notes.
func (s *Service) Logout(ctx context.Context, identity Identity) error {
	return s.registry.Revoke(ctx, identity.JTI, time.Time{})
}

func expiryOf(claims *Claims) time.Time {
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
