// Package auth implements credential and session lifecycle management:
// password hashing, dual-token session issuance, and the single-use
// password-reset code flow.
//
// A session is anchored by a long-lived signed session token held in an
// HTTP-only cookie and mirrored into the user record. A short-lived
// bearer token, minted alongside it, is what callers present on each
// request; it is only meaningful while the session token it was minted
// with is still the one on record. Logging out, logging in elsewhere, or
// redeeming a reset code replaces or clears the stored session token and
// thereby invalidates every previously issued bearer token at once.
package auth
