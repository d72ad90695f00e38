package auth

import (
	"context"
	"errors"
	"testing"
)

type fakeCredentialStore struct {
	byUsername map[string]*Credential
	byID       map[string]*Credential
}

func newFakeCredentialStore(creds ...*Credential) *fakeCredentialStore {
	s := &fakeCredentialStore{
		byUsername: make(map[string]*Credential),
		byID:       make(map[string]*Credential),
	}
	for _, c := range creds {
		s.byUsername[c.Username] = c
		s.byID[c.UserID] = c
	}
	return s
}

func (s *fakeCredentialStore) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	c, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *fakeCredentialStore) Find(ctx context.Context, userID string) (*Credential, error) {
	c, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func newTestService(t *testing.T, creds ...*Credential) *Service {
	t.Helper()
	svc, err := NewService(newFakeCredentialStore(creds...), newTestIssuer(t), NewInMemoryRegistry())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func branchAdminCredential(t *testing.T) *Credential {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &Credential{
		UserID:        "user-1",
		Username:      "branch-owner",
		PasswordHash:  hash,
		Permissions:   NewPermissionSet(PermBranchAdmin),
		OwnedBranchID: "branch-1",
	}
}

func TestLoginIssuesPairWithClaims(t *testing.T) {
	svc := newTestService(t, branchAdminCredential(t))
	ctx := context.Background()

	pair, err := svc.Login(ctx, "branch-owner", "hunter2", LoginTypeBranch)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	identity, err := svc.Authenticate(ctx, pair.Access)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("unexpected subject: %s", identity.UserID)
	}
	if identity.LoginType != LoginTypeBranch {
		t.Fatalf("unexpected login type: %s", identity.LoginType)
	}
	if !identity.Permissions.Has(PermBranchAdmin) {
		t.Fatal("permission snapshot missing branch admin")
	}
	if identity.Permissions.Has(PermOrganizationAdmin) {
		t.Fatal("unexpected organization admin permission")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	svc := newTestService(t, branchAdminCredential(t))
	if _, err := svc.Login(context.Background(), "branch-owner", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Login(context.Background(), "nobody", "hunter2", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginEnforcesLoginTypeOwnership(t *testing.T) {
	cred := branchAdminCredential(t)
	svc := newTestService(t, cred)
	ctx := context.Background()

	// Branch owner claiming the organization login type is rejected with
	// the same result as a bad password.
	if _, err := svc.Login(ctx, cred.Username, "hunter2", LoginTypeOrganization); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, cred.Username, "hunter2", LoginTypeBranch); err != nil {
		t.Fatalf("branch login should succeed: %v", err)
	}
	if _, err := svc.Login(ctx, cred.Username, "hunter2", ""); err != nil {
		t.Fatalf("untyped login should skip the ownership check: %v", err)
	}
}

func TestLogoutRevokesAccessTokenOnly(t *testing.T) {
	svc := newTestService(t, branchAdminCredential(t))
	ctx := context.Background()

	pair, err := svc.Login(ctx, "branch-owner", "hunter2", LoginTypeBranch)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	identity, err := svc.Authenticate(ctx, pair.Access)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := svc.Logout(ctx, identity); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.Authenticate(ctx, pair.Access); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
	// The paired refresh token stays valid: the asymmetry is intentional.
	if _, err := svc.Authenticate(ctx, pair.Refresh); err != nil {
		t.Fatalf("refresh token should remain usable: %v", err)
	}
}

func TestRefreshRotatesAndIsOneTimeUse(t *testing.T) {
	svc := newTestService(t, branchAdminCredential(t))
	ctx := context.Background()

	pair, err := svc.Login(ctx, "branch-owner", "hunter2", LoginTypeBranch)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	fresh, err := svc.Refresh(ctx, pair.Access, pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fresh.Access == pair.Access || fresh.Refresh == pair.Refresh {
		t.Fatal("refresh must mint new tokens")
	}

	// The fresh pair keeps the claim snapshot.
	identity, err := svc.Authenticate(ctx, fresh.Access)
	if err != nil {
		t.Fatalf("Authenticate fresh access: %v", err)
	}
	if !identity.Permissions.Has(PermBranchAdmin) || identity.LoginType != LoginTypeBranch {
		t.Fatalf("claims not carried through rotation: %+v", identity)
	}

	// Replaying the rotated pair fails with the revoked-token error.
	if _, err := svc.Refresh(ctx, pair.Access, pair.Refresh); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on replay, got %v", err)
	}
	// The old access token is dead for regular requests too.
	if _, err := svc.Authenticate(ctx, pair.Access); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected rotated access token revoked, got %v", err)
	}
}

func TestRefreshRejectsMalformedTokens(t *testing.T) {
	svc := newTestService(t, branchAdminCredential(t))
	ctx := context.Background()

	pair, err := svc.Login(ctx, "branch-owner", "hunter2", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Refresh(ctx, "not-a-token", pair.Refresh); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.Access, "not-a-token"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
	// A failed attempt must not burn the valid pair.
	if _, err := svc.Refresh(ctx, pair.Access, pair.Refresh); err != nil {
		t.Fatalf("valid pair should still rotate: %v", err)
	}
}
