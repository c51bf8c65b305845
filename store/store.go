// Package store defines the client boundary between rescache and a remote
// key-value store.
//
// A Dialer opens one logical connection (Conn) from a connection string and
// reports lifecycle events through an EventHandler. A Conn hands out a DB
// handle for byte-level reads and writes.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for a key.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConnectionString is returned by Dialer.Open when the
	// connection string cannot be parsed. It is never retried.
	ErrInvalidConnectionString = errors.New("store: invalid connection string")

	// ErrConnectionFailure wraps failures to reach the store while opening.
	ErrConnectionFailure = errors.New("store: connection failure")

	// ErrNoReplica is returned for FlagDemandReplica reads when no replica
	// is configured or connected.
	ErrNoReplica = errors.New("store: no replica available")

	// ErrClosed is returned by DB operations on a connection that has been
	// closed, typically one replaced by a reconnect while the call was in
	// flight.
	ErrClosed = errors.New("store: connection closed")
)

// Dialer opens connections to a store.
type Dialer interface {
	// Open connects using connString and registers onEvent for lifecycle
	// events. onEvent may be called from any goroutine, including before Open
	// returns.
	Open(ctx context.Context, connString string, onEvent EventHandler) (Conn, error)
}

// Conn is one logical connection.
type Conn interface {
	// Name identifies the connection in logs and events.
	Name() string
	// Endpoint is the primary endpoint address.
	Endpoint() string
	// IsConnected reports the client's current view of connectivity.
	IsConnected() bool
	// Database returns the handle used for key operations.
	Database() DB
	Close() error
}

// DB is a byte store with TTLs. Must be safe for concurrent use.
type DB interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string, flags Flags) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry. ok reports whether the
	// store accepted the write.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes key and reports whether it existed.
	Del(ctx context.Context, key string) (bool, error)
}

// Flags carry per-call routing hints.
type Flags uint8

const (
	// FlagNone reads from the primary.
	FlagNone Flags = 0
	// FlagPreferReplica reads from a replica when one is connected, else the primary.
	FlagPreferReplica Flags = 1 << iota
	// FlagDemandMaster always reads from the primary.
	FlagDemandMaster
	// FlagDemandReplica reads only from a replica; ErrNoReplica otherwise.
	FlagDemandReplica
)

func (f Flags) String() string {
	switch {
	case f&FlagDemandReplica != 0:
		return "demand-replica"
	case f&FlagDemandMaster != 0:
		return "demand-master"
	case f&FlagPreferReplica != 0:
		return "prefer-replica"
	default:
		return "none"
	}
}
