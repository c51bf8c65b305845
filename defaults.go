package rescache

import "time"

const (
	defaultConnectTimeout = 5 * time.Second
	defaultRetryInterval  = 2 * time.Second
)

// NoExpiry passed as a TTL stores the value without expiry even when the
// accessor has a DefaultTTL.
const NoExpiry time.Duration = -1

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
