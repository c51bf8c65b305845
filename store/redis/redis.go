// Package redis implements the store client boundary on top of go-redis/v9.
//
// Lifecycle events are derived from a go-redis Hook installed on every
// client: dial failures and network errors raise ConnectionFailed, the next
// successful dial or command raises ConnectionRestored, and server error
// replies are classified (MOVED/ASK, READONLY, other). Messages published on
// the configuration channel surface as ConfigurationChangedBroadcast.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rescache/store"
)

var connSeq atomic.Uint64

// Backoff bounds for pinging a primary that was down when Open ran.
const (
	minProbeInterval = 100 * time.Millisecond
	maxProbeInterval = 5 * time.Second
)

// Dialer opens go-redis backed connections. The zero value is ready to use.
type Dialer struct{}

var _ store.Dialer = Dialer{}

func (Dialer) Open(ctx context.Context, connString string, onEvent store.EventHandler) (store.Conn, error) {
	opts, err := ParseConnectionString(connString)
	if err != nil {
		return nil, err
	}
	c := newConn(opts, onEvent)

	pingErr := c.primary.Ping(ctx).Err()
	if pingErr != nil && opts.AbortOnConnectFail {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %s: %w", store.ErrConnectionFailure, c.Endpoint(), pingErr)
	}
	for _, r := range c.replicas {
		_ = r.client.Ping(ctx).Err() // sets r.healthy through the hook
	}

	c.armed.Store(true)
	if pingErr != nil {
		c.emit(store.Event{Kind: store.ConnectionFailed, Endpoint: c.Endpoint(), Payload: pingErr.Error(), Err: pingErr})
		c.watchPrimary()
	}
	c.subscribeConfig()
	return c, nil
}

type replica struct {
	client  *goredis.Client
	healthy atomic.Bool
}

type conn struct {
	name     string
	opts     Options
	primary  goredis.UniversalClient
	replicas []*replica
	rr       atomic.Uint64

	connected atomic.Bool
	armed     atomic.Bool // events are suppressed until Open completes
	closed    atomic.Bool
	done      chan struct{}
	onEvent   store.EventHandler

	pubsub *goredis.PubSub
	wg     sync.WaitGroup
}

var (
	_ store.Conn = (*conn)(nil)
	_ store.DB   = (*conn)(nil)
)

func newConn(opts Options, onEvent store.EventHandler) *conn {
	c := &conn{opts: opts, onEvent: onEvent, done: make(chan struct{})}
	c.name = opts.ClientName
	if c.name == "" {
		c.name = fmt.Sprintf("rescache-%d", connSeq.Add(1))
	}

	if opts.Cluster {
		cc := goredis.NewClusterClient(c.clusterOptions())
		cc.OnNewNode(func(rdb *goredis.Client) {
			rdb.AddHook(&eventHook{c: c, endpoint: rdb.Options().Addr, healthy: &c.connected})
		})
		c.primary = cc
		return c
	}

	pc := goredis.NewClient(c.nodeOptions(opts.Endpoints[0]))
	pc.AddHook(&eventHook{c: c, endpoint: opts.Endpoints[0], healthy: &c.connected})
	c.primary = pc

	for _, ep := range opts.Endpoints[1:] {
		r := &replica{client: goredis.NewClient(c.nodeOptions(ep))}
		r.client.AddHook(&eventHook{c: c, endpoint: ep, healthy: &r.healthy})
		c.replicas = append(c.replicas, r)
	}
	return c
}

func (c *conn) nodeOptions(addr string) *goredis.Options {
	o := &goredis.Options{
		Addr:         addr,
		Username:     c.opts.Username,
		Password:     c.opts.Password,
		DB:           c.opts.DB,
		ClientName:   c.opts.ClientName,
		DialTimeout:  c.opts.ConnectTimeout,
		ReadTimeout:  c.opts.SyncTimeout,
		WriteTimeout: c.opts.SyncTimeout,
		MaxRetries:   c.maxRetries(),
	}
	if c.opts.TLS {
		o.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return o
}

// maxRetries maps connectRetry=0 to go-redis' "no retries" (-1); go-redis
// treats 0 as "use the default".
func (c *conn) maxRetries() int {
	if c.opts.ConnectRetry == 0 {
		return -1
	}
	return c.opts.ConnectRetry
}

func (c *conn) clusterOptions() *goredis.ClusterOptions {
	o := &goredis.ClusterOptions{
		Addrs:        c.opts.Endpoints,
		Username:     c.opts.Username,
		Password:     c.opts.Password,
		ClientName:   c.opts.ClientName,
		DialTimeout:  c.opts.ConnectTimeout,
		ReadTimeout:  c.opts.SyncTimeout,
		WriteTimeout: c.opts.SyncTimeout,
		MaxRetries:   c.maxRetries(),
		ReadOnly:     c.opts.ReadFromReplicas,
	}
	if c.opts.TLS {
		o.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return o
}

func (c *conn) emit(ev store.Event) {
	if !c.armed.Load() || c.closed.Load() || c.onEvent == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.onEvent(c, ev)
}

// watchPrimary pings the primary with backoff until it answers or the conn
// closes. The hook turns the first successful ping into ConnectionRestored.
func (c *conn) watchPrimary() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		wait := minProbeInterval
		t := time.NewTimer(wait)
		defer t.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-t.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
			_ = c.primary.Ping(ctx).Err()
			cancel()
			if c.connected.Load() {
				return
			}
			wait = min(wait*2, maxProbeInterval)
			t.Reset(wait)
		}
	}()
}

// subscribeConfig forwards configuration-channel messages as broadcast events.
func (c *conn) subscribeConfig() {
	if c.opts.ConfigChannel == "" {
		return
	}
	c.pubsub = c.primary.Subscribe(context.Background(), c.opts.ConfigChannel)
	ch := c.pubsub.Channel()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range ch {
			c.emit(store.Event{
				Kind:     store.ConfigurationChangedBroadcast,
				Endpoint: c.Endpoint(),
				Payload:  msg.Payload,
			})
		}
	}()
}

func (c *conn) Name() string     { return c.name }
func (c *conn) Endpoint() string { return c.opts.Endpoints[0] }
func (c *conn) Database() store.DB {
	return c
}

func (c *conn) IsConnected() bool {
	return c.connected.Load() && !c.closed.Load()
}

func (c *conn) Get(ctx context.Context, key string, flags store.Flags) ([]byte, bool, error) {
	r, err := c.reader(flags)
	if err != nil {
		return nil, false, err
	}
	b, err := r.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, opErr(err)
	}
	return b, true, nil
}

func (c *conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0 // go-redis reads negative TTLs as KEEPTTL; we mean "no expiry"
	}
	if err := c.primary.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, opErr(err)
	}
	return true, nil
}

func (c *conn) Del(ctx context.Context, key string) (bool, error) {
	n, err := c.primary.Del(ctx, key).Result()
	if err != nil {
		return false, opErr(err)
	}
	return n > 0, nil
}

// opErr marks operations that ran on a closed client.
func opErr(err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %w", store.ErrClosed, err)
	}
	return err
}

func (c *conn) reader(flags store.Flags) (goredis.Cmdable, error) {
	switch {
	case flags&store.FlagDemandReplica != 0:
		if r, ok := c.pickReplica(); ok {
			return r, nil
		}
		return nil, store.ErrNoReplica
	case flags&store.FlagDemandMaster != 0:
		return c.primary, nil
	case flags&store.FlagPreferReplica != 0:
		if r, ok := c.pickReplica(); ok {
			return r, nil
		}
	}
	return c.primary, nil
}

// pickReplica round-robins over healthy replicas.
func (c *conn) pickReplica() (*goredis.Client, bool) {
	n := len(c.replicas)
	if n == 0 {
		return nil, false
	}
	start := c.rr.Add(1)
	for i := 0; i < n; i++ {
		r := c.replicas[(start+uint64(i))%uint64(n)]
		if r.healthy.Load() {
			return r.client, true
		}
	}
	return nil, false
}

// Close releases the clients. Safe to call multiple times.
func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	var errs []error
	if c.pubsub != nil {
		errs = append(errs, c.pubsub.Close())
	}
	c.wg.Wait()
	for _, r := range c.replicas {
		errs = append(errs, r.client.Close())
	}
	errs = append(errs, c.primary.Close())

	var out []error
	for _, err := range errs {
		if err != nil && !errors.Is(err, goredis.ErrClosed) {
			out = append(out, err)
		}
	}
	return errors.Join(out...)
}
