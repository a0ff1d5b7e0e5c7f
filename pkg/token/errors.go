package token

import "errors"

var (
	ErrMissingSigningKey = errors.New("token: missing signing key")
	ErrMissingSubject    = errors.New("token: missing subject user id")
)
