// Package sloghooks logs rescache hook callbacks through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/store"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	// Connection failures and reconnect errors are never sampled.
	SelfHealEvery   uint64
	StoreEventEvery uint64
	FactoryEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	eventCtr    atomic.Uint64
	factoryCtr  atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StoreEvent(connection string, ev store.Event, current bool) {
	if h.l == nil {
		return
	}
	args := []any{
		"event", ev.Kind.String(),
		"connection", connection,
		"endpoint", ev.Endpoint,
		"current", current,
	}
	if ev.Payload != "" {
		args = append(args, "payload", ev.Payload)
	}
	if ev.Err != nil {
		args = append(args, "err", ev.Err)
	}

	switch ev.Kind {
	case store.ConnectionFailed, store.InternalError:
		h.l.Error("rescache.store_event", args...)
	default:
		if !sample(h.opts.StoreEventEvery, &h.eventCtr) {
			return
		}
		h.l.Info("rescache.store_event", args...)
	}
}

func (h *Hooks) ReconnectStarted(attempt uint64) {
	if h.l == nil {
		return
	}
	h.l.Info("rescache.reconnect_started", "attempt", attempt)
}

func (h *Hooks) ReconnectFinished(attempt uint64, took time.Duration, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Error("rescache.reconnect_failed",
			"attempt", attempt,
			"took", took,
			"err", err)
		return
	}
	h.l.Info("rescache.reconnect_finished",
		"attempt", attempt,
		"took", took)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("rescache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) FactoryInvoked(storageKey string) {
	if h.l == nil || !sample(h.opts.FactoryEvery, &h.factoryCtr) {
		return
	}
	h.l.Debug("rescache.factory_invoked", "key", h.redact(storageKey))
}

func (h *Hooks) SetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.set_rejected", "key", h.redact(storageKey))
}
