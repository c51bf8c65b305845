package store

import "testing"

func TestEventKindString(t *testing.T) {
	kinds := map[EventKind]string{
		ConnectionFailed:              "connection_failed",
		ConnectionRestored:            "connection_restored",
		ErrorMessage:                  "error_message",
		InternalError:                 "internal_error",
		ConfigurationChanged:          "configuration_changed",
		ConfigurationChangedBroadcast: "configuration_changed_broadcast",
		HashSlotMoved:                 "hash_slot_moved",
		EventKind(0):                  "unknown",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Fatalf("%d: got %q want %q", k, got, want)
		}
	}
}

func TestFlagsString(t *testing.T) {
	if FlagNone.String() != "none" {
		t.Fatalf("none: %q", FlagNone.String())
	}
	if FlagPreferReplica.String() != "prefer-replica" {
		t.Fatalf("prefer: %q", FlagPreferReplica.String())
	}
	if (FlagPreferReplica | FlagDemandReplica).String() != "demand-replica" {
		t.Fatal("demand-replica should win over prefer")
	}
}
