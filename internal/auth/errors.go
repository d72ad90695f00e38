package auth

import "errors"

var (
	// ErrInvalidCredentials covers bad username/password and failed
	// login-type ownership checks. Both surface identically to callers.
	ErrInvalidCredentials = errors.New("auth: invalid username or password")

	// ErrMalformedToken indicates the token could not be decoded at all.
	ErrMalformedToken = errors.New("auth: malformed token")

	// ErrInvalidToken indicates a decodable token with a bad signature,
	// wrong algorithm, wrong issuer, or missing required claims.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenRevoked = errors.New("auth: token revoked")

	ErrForbidden = errors.New("auth: permission denied")
	ErrNotFound  = errors.New("auth: not found")
)
