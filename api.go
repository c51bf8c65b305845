package rescache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/store"
)

// Options tune a Manager.
// Only ConnectionString is required; others have sensible defaults.
type Options struct {
	// Required
	ConnectionString string // "host:port[,host:port][,option=value]" or redis:// URL

	Dialer         store.Dialer  // nil => store/redis
	Logger         Logger        // if nil, NopLogger is used
	Hooks          Hooks         // if nil, NopHooks is used
	ConnectTimeout time.Duration // per connect attempt; 0 => 5s
	RetryInterval  time.Duration // grace for a connection opened while the store was down; 0 => 2s
}

// AccessorOptions tune a typed Accessor. All fields are optional.
type AccessorOptions[V any] struct {
	Codec               c.Codec[V]    // nil => codec.Msgpack[V]
	Namespace           string        // keys become "ns:key" when set. e.g. "user", "session"
	DefaultTTL          time.Duration // used when a call passes ttl 0; 0 => no expiry
	DisableSingleFlight bool          // default false => concurrent GetOrCreate misses share one factory call
}

// Factory computes a value on a GetOrCreate miss.
type Factory[V any] func(ctx context.Context) (V, error)
