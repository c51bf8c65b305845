package rescache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rescache/store"
)

var (
	shared   atomic.Pointer[Manager]
	sharedMu sync.Mutex
)

// SharedOption customizes the process-wide Manager on its first creation.
type SharedOption func(*Options)

func WithDialer(d store.Dialer) SharedOption {
	return func(o *Options) { o.Dialer = d }
}

func WithLogger(l Logger) SharedOption {
	return func(o *Options) { o.Logger = l }
}

func WithHooks(h Hooks) SharedOption {
	return func(o *Options) { o.Hooks = h }
}

func WithConnectTimeout(d time.Duration) SharedOption {
	return func(o *Options) { o.ConnectTimeout = d }
}

func WithRetryInterval(d time.Duration) SharedOption {
	return func(o *Options) { o.RetryInterval = d }
}

// Shared returns the process-wide Manager, creating it on first use.
// The first successful call fixes the connection string and options; later
// calls get the same instance whatever they pass. A call that fails
// validation leaves no instance behind.
func Shared(ctx context.Context, connectionString string, opts ...SharedOption) (*Manager, error) {
	if m := shared.Load(); m != nil {
		return m, nil
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if m := shared.Load(); m != nil {
		return m, nil
	}

	o := Options{ConnectionString: connectionString}
	for _, fn := range opts {
		fn(&o)
	}
	m, err := New(ctx, o)
	if err != nil {
		return nil, err
	}
	shared.Store(m)
	return m, nil
}
