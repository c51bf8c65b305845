package rescache

import (
	"time"

	"github.com/unkn0wn-root/rescache/store"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow sinks with
// hooks/async.
type Hooks interface {
	// A store lifecycle event arrived. current is false when it came from a
	// connection that has since been replaced.
	StoreEvent(connection string, ev store.Event, current bool)

	// A reconnect attempt started / finished (err nil on success).
	ReconnectStarted(attempt uint64)
	ReconnectFinished(attempt uint64, took time.Duration, err error)

	// An undecodable entry was read as a miss. All but codec_mismatch are deleted.
	// reason ∈ {"corrupt", "codec_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// GetOrCreate ran the factory for a miss.
	FactoryInvoked(storageKey string)

	// The store returned ok=false on Set.
	SetRejected(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StoreEvent(string, store.Event, bool)           {}
func (NopHooks) ReconnectStarted(uint64)                        {}
func (NopHooks) ReconnectFinished(uint64, time.Duration, error) {}
func (NopHooks) SelfHeal(string, string)                        {}
func (NopHooks) FactoryInvoked(string)                          {}
func (NopHooks) SetRejected(string)                             {}
