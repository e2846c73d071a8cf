// Package storage defines the persistence interfaces for the fishdeas
// backend: credential records, single-use reset codes, articles,
// detections, and the object store for uploaded images.
//
// The document store is an external collaborator; implementations live in
// subpackages (postgres) and in memory.go for tests and dev mode. All
// lookups return ErrNotFound rather than driver-specific errors, and
// CreateUser returns ErrDuplicate when the email is already taken, which
// lets register stay race-free where the backing store supports it.
package storage
