// Package eventstore records job lifecycle events to an append-only log so
// operators can reconstruct what happened to any job after the fact.
package eventstore

import (
	"context"
	"time"
)

// Store is an append-only log of job lifecycle events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, jobKey, eventType string, payload []byte, metadata map[string]string) error
	// GetByJobKey retrieves all events for a specific job, oldest first.
	GetByJobKey(ctx context.Context, jobKey string) ([]Event, error)
	// GetRange retrieves events within a time range, oldest first.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	// Close releases the underlying resources.
	Close() error
}
