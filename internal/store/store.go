package store

import (
	"context"

	"learningodyssey/internal/adventure"
)

// Store is the State Store Adapter contract (C8). Store is idempotent per
// clientUUID until isComplete is true: repeated calls for the same client
// with isComplete=false overwrite the same state_id rather than minting a
// new one, so mid-adventure autosaves don't fork resumption state.
type Store interface {
	Store(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string, isComplete bool) (stateID string, err error)
	Load(ctx context.Context, stateID string) (Record, error)
	ActiveForClient(ctx context.Context, clientUUID string) (stateID string, ok bool, err error)
}

// ErrNotFound is returned by Load when stateID has no record.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: state not found" }
