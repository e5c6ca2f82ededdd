// Package store provides the append-only message log backing channel history
// replay. The relay core depends only on the Store interface; production runs
// on SQLite and tests run on the in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store is closed")

// Message is one persisted chat record. Records are immutable once written
// and totally ordered per channel by insertion.
type Message struct {
	Channel string
	Nick    string
	Text    string
	Time    time.Time
}

// Store is an append-only message log keyed by channel.
type Store interface {
	// Append writes one record. A zero Time is stamped with the current time.
	// Writes within a channel are observed in call order.
	Append(ctx context.Context, msg Message) error

	// History returns a channel's records in ascending insertion order.
	// A positive limit returns only the most recent limit records, still in
	// ascending order; limit <= 0 returns everything.
	History(ctx context.Context, channel string, limit int) ([]Message, error)

	Close() error
}
