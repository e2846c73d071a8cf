package auth

import "errors"

var (
	// ErrBadCredentials is returned on a wrong email/password pair.
	// Deliberately does not say which half was wrong.
	ErrBadCredentials = errors.New("email or password is incorrect")

	// ErrEmailTaken is returned when registering an email that exists
	ErrEmailTaken = errors.New("email already exists")

	// ErrPasswordMismatch is returned when password and confirmation differ
	ErrPasswordMismatch = errors.New("password and confirm password do not match")

	// ErrCodeUsed is returned when redeeming an already-redeemed reset
	// code, regardless of whether the code would otherwise match
	ErrCodeUsed = errors.New("code has already been used")

	// ErrCodeInvalid is returned when the supplied reset code does not
	// match the stored hash
	ErrCodeInvalid = errors.New("invalid code")

	// ErrCodeExpired is returned when the reset code is past its expiry
	ErrCodeExpired = errors.New("code has expired")

	// ErrTokenExpired is returned when a token's signature is valid but
	// its expiry has passed
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token is malformed or its
	// signature does not verify
	ErrTokenInvalid = errors.New("token is not valid")
)
