package rescache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/internal/util"
	"github.com/unkn0wn-root/rescache/internal/wire"
	"github.com/unkn0wn-root/rescache/store"
)

// Accessor is a typed view over a Manager for one value type.
// Connectivity problems degrade to zero values / false; argument errors and
// store operation errors are returned.
type Accessor[V any] struct {
	m          *Manager
	ser        Serializer[V]
	ns         string
	defaultTTL time.Duration
	sf         *singleflight.Group // nil when disabled
}

func NewAccessor[V any](m *Manager, opts AccessorOptions[V]) (*Accessor[V], error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidArgument)
	}
	if err := checkSerializable[V](); err != nil {
		return nil, err
	}

	var codec c.Codec[V] = c.Msgpack[V]{}
	if opts.Codec != nil {
		codec = opts.Codec
	}
	a := &Accessor[V]{
		m:          m,
		ser:        NewSerializer(codec),
		ns:         opts.Namespace,
		defaultTTL: opts.DefaultTTL,
	}
	if !opts.DisableSingleFlight {
		a.sf = &singleflight.Group{}
	}
	return a, nil
}

// Get returns the cached value or the zero value on miss.
func (a *Accessor[V]) Get(ctx context.Context, key string, flags store.Flags) (V, error) {
	v, _, err := a.TryGet(ctx, key, flags)
	return v, err
}

// TryGet is Get reporting whether the key was found. An entry that cannot be
// decoded is reported as a miss.
func (a *Accessor[V]) TryGet(ctx context.Context, key string, flags store.Flags) (V, bool, error) {
	var zero V
	if !util.ValidKey(key) {
		return zero, false, invalidKey(key)
	}
	db := a.m.Database(ctx)
	if db == nil {
		return zero, false, nil
	}

	k := util.StorageKey(a.ns, key)
	raw, ok, err := db.Get(ctx, k, flags)
	if replaced(err) {
		return zero, false, nil
	}
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := a.ser.Deserialize(raw)
	if err != nil {
		a.heal(ctx, db, k, err)
		return zero, false, nil
	}
	return v, true, nil
}

// replaced reports an operation that ran on a connection closed by a
// concurrent reconnect. It degrades like a missing connection.
func replaced(err error) bool {
	return errors.Is(err, store.ErrClosed)
}

// heal drops an undecodable entry. Entries written with another codec are
// left in place; a reader with a different codec does not own them.
func (a *Accessor[V]) heal(ctx context.Context, db store.DB, k string, cause error) {
	reason := "value_decode"
	switch {
	case errors.Is(cause, ErrCodecMismatch):
		reason = "codec_mismatch"
	case errors.Is(cause, wire.ErrCorrupt):
		reason = "corrupt"
	}
	a.m.hooks.SelfHeal(k, reason)

	if reason == "codec_mismatch" {
		a.m.log.Warn("entry written with another codec; treating as miss", Fields{"key": k, "err": cause})
		return
	}
	a.m.log.Warn("dropping undecodable entry", Fields{"key": k, "reason": reason, "err": cause})
	if _, err := db.Del(ctx, k); err != nil && !replaced(err) {
		a.m.log.Error("self-heal delete failed", Fields{"key": k, "err": err})
	}
}

// Future is the pending result of GetAsync.
type Future[V any] struct {
	done chan struct{}
	v    V
	err  error
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is ready or ctx ends.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.v, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// GetAsync runs Get in the background. Argument errors are returned
// immediately rather than through the Future.
func (a *Accessor[V]) GetAsync(ctx context.Context, key string, flags store.Flags) (*Future[V], error) {
	if !util.ValidKey(key) {
		return nil, invalidKey(key)
	}
	f := &Future[V]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.v, f.err = a.Get(ctx, key, flags)
	}()
	return f, nil
}

// Set stores value under key. ttl 0 uses the accessor's DefaultTTL; NoExpiry
// stores without expiry. Absent values (nil pointer, map, slice, interface)
// are not written and report false.
func (a *Accessor[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) (bool, error) {
	if !util.ValidKey(key) {
		return false, invalidKey(key)
	}
	if isAbsent(value) {
		return false, nil
	}
	raw, err := a.ser.Serialize(value)
	if err != nil {
		return false, err
	}
	db := a.m.Database(ctx)
	if db == nil {
		return false, nil
	}
	if ttl == 0 {
		ttl = a.defaultTTL
	}

	k := util.StorageKey(a.ns, key)
	ok, err := db.Set(ctx, k, raw, ttl)
	if replaced(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !ok {
		a.m.hooks.SetRejected(k)
		a.m.log.Debug("store rejected set", Fields{"key": k})
	}
	return ok, nil
}

// GetOrCreate returns the cached value, or runs factory on a miss and stores
// its result best-effort. A nil factory turns a miss into the zero value.
// With singleflight enabled, concurrent misses on one key share a single
// factory call. The shared call keeps the first caller's context values but
// not its cancellation; each caller stops waiting when its own ctx ends.
func (a *Accessor[V]) GetOrCreate(ctx context.Context, key string, factory Factory[V], flags store.Flags, ttl time.Duration) (V, error) {
	v, ok, err := a.TryGet(ctx, key, flags)
	if err != nil || ok || factory == nil {
		return v, err
	}
	if a.sf == nil {
		return a.create(ctx, key, factory, ttl)
	}

	fctx := context.WithoutCancel(ctx)
	ch := a.sf.DoChan(util.StorageKey(a.ns, key), func() (any, error) {
		// a flight that just finished may have stored it
		if v, ok, err := a.TryGet(fctx, key, flags); err == nil && ok {
			return v, nil
		}
		return a.create(fctx, key, factory, ttl)
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ = res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (a *Accessor[V]) create(ctx context.Context, key string, factory Factory[V], ttl time.Duration) (V, error) {
	k := util.StorageKey(a.ns, key)
	a.m.hooks.FactoryInvoked(k)

	v, err := factory(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if isAbsent(v) {
		return v, nil
	}
	if _, err := a.Set(ctx, key, v, ttl); err != nil {
		a.m.log.Warn("storing computed value failed", Fields{"key": k, "err": err})
	}
	return v, nil
}

// Delete removes key and reports whether it existed.
func (a *Accessor[V]) Delete(ctx context.Context, key string) (bool, error) {
	if !util.ValidKey(key) {
		return false, invalidKey(key)
	}
	db := a.m.Database(ctx)
	if db == nil {
		return false, nil
	}
	ok, err := db.Del(ctx, util.StorageKey(a.ns, key))
	if replaced(err) {
		return false, nil
	}
	return ok, err
}
