package store

import "time"

// EventKind enumerates store lifecycle events.
type EventKind uint8

const (
	ConnectionFailed EventKind = iota + 1
	ConnectionRestored
	ErrorMessage
	InternalError
	ConfigurationChanged
	ConfigurationChangedBroadcast
	HashSlotMoved // clustered stores only
)

func (k EventKind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection_failed"
	case ConnectionRestored:
		return "connection_restored"
	case ErrorMessage:
		return "error_message"
	case InternalError:
		return "internal_error"
	case ConfigurationChanged:
		return "configuration_changed"
	case ConfigurationChangedBroadcast:
		return "configuration_changed_broadcast"
	case HashSlotMoved:
		return "hash_slot_moved"
	default:
		return "unknown"
	}
}

// Event is delivered to an EventHandler.
type Event struct {
	Kind     EventKind
	Endpoint string
	// Payload is the human-readable event detail (error text, pub/sub
	// message, MOVED target...).
	Payload string
	Err     error
	Time    time.Time
}

// EventHandler receives events together with the connection that raised them.
// Implementations must pass a comparable source (a pointer) so callers can
// tell events from a replaced connection apart.
type EventHandler func(source Conn, ev Event)
