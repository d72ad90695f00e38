package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vyhan.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/api/auth/login",
	"/api/auth/refresh",
	"/api/organization/create",
	"/api/organization/info",
	"/healthz",
	"/readyz",
	"/metrics",
}
var publicPrefixes = []string{
	"/api/shipment/track/",
}

// withAuth authenticates bearer tokens on everything outside the public
// surface and binds the resulting identity into the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeAuthError maps token failures onto the error taxonomy: malformed
// input is the client's encoding problem, everything else is a credential
// problem.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMalformedToken):
		writeError(w, http.StatusBadRequest, "token is malformed")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token has expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "token has been revoked")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "token is invalid")
	default:
		writeError(w, http.StatusInternalServerError, "authentication error")
	}
}

// requireIdentity enforces authentication first (401), then the declared
// permissions (403). The ordering is part of the contract.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request, perms ...auth.Permission) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	if !identity.Permissions.HasAll(perms...) {
		writeError(w, http.StatusForbidden, "permission denied")
		return auth.Identity{}, false
	}
	return identity, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
