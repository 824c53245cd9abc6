// Package store implements the State Store Adapter (C8): a pure sink that
// serializes an AdventureState snapshot, tags it with environment/client
// identity, and records timestamps. It never invokes any other component;
// reconstructing a Record's Snapshot back into a live AdventureState is
// C1's job (adventure.Reconstruct).
package store

import (
	"fmt"
	"time"

	"learningodyssey/internal/adventure"
)

// Record is the persisted envelope around a C1 Snapshot: the adapter's own
// identity and lifecycle fields plus the adventure.Snapshot produced by
// AdventureState.Snapshot(), which already carries the discriminated
// Response encoding Reconstruct needs.
type Record struct {
	StateID     string            `json:"state_id"`
	Environment string            `json:"environment"`
	UserID      string            `json:"user_id"`
	ClientUUID  string            `json:"client_uuid"`
	IsComplete  bool              `json:"is_complete"`
	Snapshot    adventure.Snapshot `json:"snapshot"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// recordFrom takes a consistent Snapshot of state (under its own lock, so a
// concurrently-mutating adventure can't produce a torn read) and wraps it
// with the identity fields this adapter owns.
func recordFrom(state *adventure.AdventureState) adventure.Snapshot {
	state.Lock()
	defer state.Unlock()
	return state.Snapshot()
}

func stringifyUserID(snap adventure.Snapshot) string {
	raw, ok := snap.Metadata["user_id"]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
