package auth

import "errors"

var (
	// ErrConfiguration marks a fatal startup problem: no secret or no users.
	ErrConfiguration = errors.New("auth: configuration error")
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	errMissingSecret = errors.New("signing secret is not configured")
	errNoUsers       = errors.New("no users configured")
)
