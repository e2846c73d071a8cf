// Package config loads FishDeas configuration from environment
// variables. Every knob has a FISHDEAS_ prefixed variable and a default
// that works for local development with the in-memory store; production
// deployments set the postgres, S3, token secret, and SMTP variables.
package config
