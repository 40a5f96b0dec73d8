// Package queue defines the at-least-once job queue between the submission
// front door and the dispatcher, and provides an in-memory implementation.
// The durable Postgres implementation lives in internal/platform/postgres.
package queue
