// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:   10, // sample logs: ~every 10th self-heal
//	    StoreEventEvery: 1,  // log every non-failure store event
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	m, _ := rescache.New(ctx, rescache.Options{
//	    ConnectionString: "cache-1:6379,cache-2:6379,abortConnect=false",
//	    Hooks:            hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/store"
)

// Hooks queues every callback onto a bounded channel drained by a fixed set
// of workers. When the queue is full the callback is dropped and counted.
type Hooks struct {
	inner   rescache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(inner rescache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued callbacks and stops the workers. Callbacks arriving
// afterwards are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many callbacks were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) StoreEvent(conn string, ev store.Event, current bool) {
	h.try(func() { h.inner.StoreEvent(conn, ev, current) })
}
func (h *Hooks) ReconnectStarted(n uint64) { h.try(func() { h.inner.ReconnectStarted(n) }) }
func (h *Hooks) ReconnectFinished(n uint64, took time.Duration, err error) {
	h.try(func() { h.inner.ReconnectFinished(n, took, err) })
}
func (h *Hooks) SelfHeal(k, r string)    { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) FactoryInvoked(k string) { h.try(func() { h.inner.FactoryInvoked(k) }) }
func (h *Hooks) SetRejected(k string)    { h.try(func() { h.inner.SetRejected(k) }) }
