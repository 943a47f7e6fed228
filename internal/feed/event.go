// Package feed fans change signals out to the display surfaces that mirror
// machine and usage state. A signal only says "something changed"; receivers
// re-read the full snapshot they care about.
package feed

import (
	"fmt"
	"strings"
)

// PGChannel is the Postgres NOTIFY channel carrying change payloads between instances.
const PGChannel = "laundry_changes"

// Collection names the persisted collection a change touched.
type Collection string

const (
	CollectionMachines Collection = "machines"
	CollectionUsage    Collection = "machine_usage"
)

// Event is a change hint keyed by machine id.
type Event struct {
	Collection Collection `json:"collection"`
	MachineID  string     `json:"machine_id,omitempty"`
}

// MachineChanged builds the event for a write to a machine row.
func MachineChanged(machineID string) Event {
	return Event{Collection: CollectionMachines, MachineID: machineID}
}

// UsageChanged builds the event for a write to the usage ledger.
func UsageChanged(machineID string) Event {
	return Event{Collection: CollectionUsage, MachineID: machineID}
}

// Payload encodes the event as "<collection>:<machine id>".
func (e Event) Payload() string {
	return string(e.Collection) + ":" + e.MachineID
}

// ParseEvent decodes a NOTIFY payload produced by Payload.
func ParseEvent(payload string) (Event, error) {
	collection, machineID, ok := strings.Cut(payload, ":")
	if !ok {
		return Event{}, fmt.Errorf("malformed change payload %q", payload)
	}
	switch Collection(collection) {
	case CollectionMachines, CollectionUsage:
	default:
		return Event{}, fmt.Errorf("unknown collection %q in change payload", collection)
	}
	return Event{Collection: Collection(collection), MachineID: machineID}, nil
}
