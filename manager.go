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
	"github.com/unkn0wn-root/rescache/store/redis"
)

// Manager owns one logical store connection and keeps it usable.
// Safe for concurrent use.
type Manager struct {
	connString     string
	dialer         store.Dialer
	log            Logger
	hooks          Hooks
	connectTimeout time.Duration
	retryInterval  time.Duration

	conn  atomic.Pointer[connBox]
	state connState
	mu    sync.Mutex // serializes connection swaps with Close

	reconnects        atomic.Uint64
	reconnectFailures atomic.Uint64
	events            atomic.Uint64
}

// connBox lets an interface value live behind an atomic.Pointer.
// pending marks a connection that was opened while the store was down and is
// left to recover on its own.
type connBox struct {
	c       store.Conn
	opened  time.Time
	pending bool
}

// Stats is a point-in-time snapshot of a Manager.
type Stats struct {
	State             State
	Connection        string
	Reconnects        uint64
	ReconnectFailures uint64
	Events            uint64
}

// New validates opts and connects. A network failure on this first connect
// is logged, not returned: the Manager starts Failed and reconnects on the
// first operation.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if strings.TrimSpace(opts.ConnectionString) == "" {
		return nil, fmt.Errorf("%w: connection string is empty", ErrInvalidArgument)
	}

	var dialer store.Dialer = redis.Dialer{}
	if opts.Dialer != nil {
		dialer = opts.Dialer
	}
	var log Logger = NopLogger{}
	if opts.Logger != nil {
		log = opts.Logger
	}
	var hooks Hooks = NopHooks{}
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}

	m := &Manager{
		connString:     opts.ConnectionString,
		dialer:         dialer,
		log:            log,
		hooks:          hooks,
		connectTimeout: coalesce(opts.ConnectTimeout, defaultConnectTimeout),
		retryInterval:  coalesce(opts.RetryInterval, defaultRetryInterval),
	}
	m.state.store(StateFailed)

	cn, err := m.connect(ctx)
	if err != nil {
		if errors.Is(err, store.ErrInvalidConnectionString) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		m.log.Error("initial connect failed; will retry on first use", Fields{
			"err": err,
		})
		return m, nil
	}
	if cn.IsConnected() {
		m.state.transition(StateFailed, StateConnected)
	} else {
		m.log.Warn("store unreachable; waiting for the connection to recover", Fields{
			"connection": cn.Name(),
			"endpoint":   cn.Endpoint(),
		})
	}
	return m, nil
}

// ConnectionString returns the string the Manager was built with.
func (m *Manager) ConnectionString() string { return m.connString }

func (m *Manager) State() State { return m.state.load() }

// Connection returns the current connection's identity, or "" when none.
func (m *Manager) Connection() string {
	if b := m.conn.Load(); b != nil {
		return b.c.Name()
	}
	return ""
}

func (m *Manager) Stats() Stats {
	return Stats{
		State:             m.state.load(),
		Connection:        m.Connection(),
		Reconnects:        m.reconnects.Load(),
		ReconnectFailures: m.reconnectFailures.Load(),
		Events:            m.events.Load(),
	}
}

// Database returns a handle for the current connection, reconnecting first
// when the connection is missing, reports itself disconnected, or the
// Manager is Failed. Only one caller reconnects; the others continue with
// the connection as it is. A connection that opened disconnected gets
// RetryInterval to recover before it is replaced. Returns nil when no
// connection is usable.
func (m *Manager) Database(ctx context.Context) store.DB {
	st := m.state.load()
	if st == StateClosed {
		return nil
	}
	b := m.conn.Load()
	if b != nil && st != StateFailed && b.c.IsConnected() {
		return b.c.Database()
	}
	if b != nil && b.pending {
		if b.c.IsConnected() && m.state.transition(StateFailed, StateConnected) {
			return b.c.Database() // restored before it was published
		}
		if !b.c.IsConnected() && time.Since(b.opened) < m.retryInterval {
			return nil
		}
	}
	if st == StateReconnecting || !m.state.transition(st, StateReconnecting) {
		return m.current()
	}
	return m.reconnect(ctx)
}

// current is what a caller that lost the reconnect race gets.
func (m *Manager) current() store.DB {
	if b := m.conn.Load(); b != nil && b.c.IsConnected() {
		return b.c.Database()
	}
	return nil
}

// reconnect runs with the state held at Reconnecting by the caller.
func (m *Manager) reconnect(ctx context.Context) store.DB {
	defer m.state.transition(StateReconnecting, StateFailed)

	attempt := m.reconnects.Add(1)
	m.hooks.ReconnectStarted(attempt)
	m.log.Warn("reconnecting", Fields{"attempt": attempt, "connection": m.Connection()})

	start := time.Now()
	cn, err := m.connect(ctx)
	took := time.Since(start)
	if err == nil && !cn.IsConnected() {
		err = fmt.Errorf("%w: %s unreachable", store.ErrConnectionFailure, cn.Endpoint())
	}
	if err != nil {
		rerr := &ReconnectError{Attempt: attempt, Err: err}
		m.reconnectFailures.Add(1)
		m.hooks.ReconnectFinished(attempt, took, rerr)
		m.log.Error("reconnect failed", Fields{"attempt": attempt, "took": took, "err": err})
		return nil
	}
	m.hooks.ReconnectFinished(attempt, took, nil)

	m.state.transition(StateReconnecting, StateConnected)
	return cn.Database()
}

// connect opens a new connection and publishes it, closing the one it replaces.
func (m *Manager) connect(ctx context.Context) (store.Conn, error) {
	cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	cn, err := m.dialer.Open(cctx, m.connString, m.onEvent)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.state.load() == StateClosed {
		m.mu.Unlock()
		_ = cn.Close()
		return nil, ErrClosed
	}
	old := m.conn.Swap(&connBox{c: cn, opened: time.Now(), pending: !cn.IsConnected()})
	m.mu.Unlock()

	m.log.Info("connected", Fields{
		"connection": cn.Name(),
		"endpoint":   cn.Endpoint(),
		"connected":  cn.IsConnected(),
	})
	if old != nil {
		if err := old.c.Close(); err != nil {
			m.log.Warn("closing replaced connection failed", Fields{"connection": old.c.Name(), "err": err})
		}
	}
	return cn, nil
}

func (m *Manager) isCurrent(source store.Conn) bool {
	b := m.conn.Load()
	return b != nil && source != nil && b.c == source
}

// onEvent is the single handler registered with every connection.
func (m *Manager) onEvent(source store.Conn, ev store.Event) {
	m.events.Add(1)

	name := "<unknown>"
	if source != nil {
		name = source.Name()
	}
	current := m.isCurrent(source)

	f := Fields{
		"event":      ev.Kind.String(),
		"connection": name,
		"endpoint":   ev.Endpoint,
	}
	if ev.Payload != "" {
		f["payload"] = ev.Payload
	}
	if ev.Err != nil {
		f["err"] = ev.Err
	}
	if !current {
		f["stale"] = true
	}
	logAt(m.log, eventLevel(ev.Kind), "store event", f)
	m.hooks.StoreEvent(name, ev, current)

	if !current {
		return
	}
	switch ev.Kind {
	case store.ConnectionFailed:
		m.state.transition(StateConnected, StateFailed)
	case store.ConnectionRestored:
		m.state.transition(StateFailed, StateConnected)
	}
}

func eventLevel(k store.EventKind) level {
	switch k {
	case store.ConnectionFailed, store.InternalError:
		return levelError
	case store.ErrorMessage, store.HashSlotMoved:
		return levelWarn
	default:
		return levelInfo
	}
}

// Close releases the connection. Later operations degrade to defaults and no
// reconnect is attempted. Idempotent.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.load() == StateClosed {
		return nil
	}
	m.state.store(StateClosed)
	b := m.conn.Swap(nil)
	if b == nil {
		return nil
	}
	m.log.Info("closing connection", Fields{"connection": b.c.Name()})
	return b.c.Close()
}
