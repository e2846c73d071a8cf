// Package api implements the FishDeas HTTP API: account and session
// lifecycle under /users, editorial articles under /articles, and
// disease detections under /detections. Handlers return the common
// {error, message} envelope and rely on the verification gate for
// everything behind authentication.
package api
