// Package middleware provides the request admission layer for the
// FishDeas API. The verification gate authenticates every protected
// request with a short-lived bearer token, cross-checks the session
// cookie against the token stored on the account, and enforces the
// verified-email requirement before a handler runs.
package middleware
