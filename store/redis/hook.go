package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rescache/store"
)

// eventHook turns go-redis dial and command outcomes into store events.
// healthy is the flag this hook owns (the conn-wide flag for the primary or
// cluster nodes, a per-replica flag otherwise).
type eventHook struct {
	c        *conn
	endpoint string
	healthy  *atomic.Bool
}

var _ goredis.Hook = (*eventHook)(nil)

func (h *eventHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		nc, err := next(ctx, network, addr)
		if err != nil {
			if !isCallerCancel(err) {
				h.down(addr, err)
			}
			return nil, err
		}
		h.up(addr)
		return nc, nil
	}
}

func (h *eventHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		h.observe(err)
		return err
	}
}

func (h *eventHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			h.observe(cmd.Err())
		}
		return err
	}
}

func (h *eventHook) observe(err error) {
	switch {
	case err == nil, errors.Is(err, goredis.Nil):
		h.up(h.endpoint)
	case errors.Is(err, goredis.ErrClosed), isCallerCancel(err):
		// our own shutdown or the caller gave up; says nothing about the store
	case isNetworkError(err):
		h.down(h.endpoint, err)
	default:
		var rerr goredis.Error
		if errors.As(err, &rerr) {
			h.c.emit(replyEvent(h.endpoint, rerr))
			return
		}
		h.c.emit(store.Event{Kind: store.InternalError, Endpoint: h.endpoint, Payload: err.Error(), Err: err})
	}
}

func (h *eventHook) down(endpoint string, err error) {
	if h.healthy.CompareAndSwap(true, false) {
		h.c.emit(store.Event{Kind: store.ConnectionFailed, Endpoint: endpoint, Payload: err.Error(), Err: err})
	}
}

func (h *eventHook) up(endpoint string) {
	if h.healthy.CompareAndSwap(false, true) {
		h.c.emit(store.Event{Kind: store.ConnectionRestored, Endpoint: endpoint, Payload: "connection restored"})
	}
}

// replyEvent classifies a server error reply.
func replyEvent(endpoint string, rerr goredis.Error) store.Event {
	msg := rerr.Error()
	kind := store.ErrorMessage
	switch {
	case strings.HasPrefix(msg, "MOVED "), strings.HasPrefix(msg, "ASK "):
		kind = store.HashSlotMoved
	case strings.HasPrefix(msg, "READONLY "):
		kind = store.ConfigurationChanged
	}
	return store.Event{Kind: kind, Endpoint: endpoint, Payload: msg, Err: rerr}
}

func isNetworkError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

func isCallerCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
