package rescache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rescache/store"
)

// fakeDialer is an in-memory store whose connections can be failed and
// restored on demand. All connections share one keyspace.
type fakeDialer struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	conns   []*fakeConn
	flags   []store.Flags
	gets    atomic.Int64
	opens   atomic.Int64
	failing atomic.Bool
	down    atomic.Bool // Open succeeds with a disconnected conn
	reject  atomic.Bool
	delay   time.Duration
	before  func() // runs at the start of every DB operation
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (d *fakeDialer) Open(ctx context.Context, cs string, h store.EventHandler) (store.Conn, error) {
	n := d.opens.Add(1)
	if strings.HasPrefix(cs, "bad") {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidConnectionString, cs)
	}
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.failing.Load() {
		return nil, fmt.Errorf("%w: fake refused", store.ErrConnectionFailure)
	}
	c := &fakeConn{d: d, name: fmt.Sprintf("fake-%d", n), onEvent: h}
	c.connected.Store(!d.down.Load())
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) raw(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.data[key]
	return b, ok
}

func (d *fakeDialer) put(key string, b []byte) {
	d.mu.Lock()
	d.data[key] = b
	d.mu.Unlock()
}

type fakeConn struct {
	d         *fakeDialer
	name      string
	onEvent   store.EventHandler
	connected atomic.Bool
	closed    atomic.Bool
}

func (c *fakeConn) Name() string      { return c.name }
func (c *fakeConn) Endpoint() string  { return "fake:0" }
func (c *fakeConn) IsConnected() bool { return c.connected.Load() && !c.closed.Load() }
func (c *fakeConn) Database() store.DB {
	return fakeDB{c: c}
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fail marks the connection down and raises ConnectionFailed.
func (c *fakeConn) fail() {
	c.connected.Store(false)
	c.onEvent(c, store.Event{Kind: store.ConnectionFailed, Endpoint: c.Endpoint(), Payload: "socket closed", Time: time.Now()})
}

func (c *fakeConn) restore() {
	c.connected.Store(true)
	c.onEvent(c, store.Event{Kind: store.ConnectionRestored, Endpoint: c.Endpoint(), Time: time.Now()})
}

type fakeDB struct{ c *fakeConn }

// check mirrors a real client: closed beats disconnected.
func (db fakeDB) check() error {
	if db.c.d.before != nil {
		db.c.d.before()
	}
	if db.c.closed.Load() {
		return store.ErrClosed
	}
	if !db.c.connected.Load() {
		return errFakeDown
	}
	return nil
}

var errFakeDown = errors.New("fake: connection down")

func (db fakeDB) Get(_ context.Context, key string, flags store.Flags) ([]byte, bool, error) {
	d := db.c.d
	d.gets.Add(1)
	if err := db.check(); err != nil {
		return nil, false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flags = append(d.flags, flags)
	b, ok := d.data[key]
	return b, ok, nil
}

func (db fakeDB) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	d := db.c.d
	if err := db.check(); err != nil {
		return false, err
	}
	if d.reject.Load() {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = value
	d.ttls[key] = ttl
	return true, nil
}

func (db fakeDB) Del(_ context.Context, key string) (bool, error) {
	d := db.c.d
	if err := db.check(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.data[key]
	delete(d.data, key)
	return ok, nil
}

// recHooks records hook calls for assertions.
type recHooks struct {
	NopHooks
	mu        sync.Mutex
	events    []hookEvent
	started   int
	finished  []error
	heals     []string
	factories []string
	rejected  []string
}

type hookEvent struct {
	conn    string
	kind    store.EventKind
	current bool
}

func (h *recHooks) StoreEvent(conn string, ev store.Event, current bool) {
	h.mu.Lock()
	h.events = append(h.events, hookEvent{conn, ev.Kind, current})
	h.mu.Unlock()
}

func (h *recHooks) ReconnectStarted(uint64) {
	h.mu.Lock()
	h.started++
	h.mu.Unlock()
}

func (h *recHooks) ReconnectFinished(_ uint64, _ time.Duration, err error) {
	h.mu.Lock()
	h.finished = append(h.finished, err)
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(key, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, key+"|"+reason)
	h.mu.Unlock()
}

func (h *recHooks) FactoryInvoked(key string) {
	h.mu.Lock()
	h.factories = append(h.factories, key)
	h.mu.Unlock()
}

func (h *recHooks) SetRejected(key string) {
	h.mu.Lock()
	h.rejected = append(h.rejected, key)
	h.mu.Unlock()
}

func newTestManager(t interface{ Fatalf(string, ...any) }, d *fakeDialer, h Hooks) *Manager {
	m, err := New(context.Background(), Options{ConnectionString: "fake:0", Dialer: d, Hooks: h})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}
