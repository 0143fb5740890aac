package profile

import (
	"context"
	"errors"
)

// ErrNotFound signals a lookup for an unknown profile identifier.
var ErrNotFound = errors.New("profile not found")

// Store exposes the external profile record service. Updates are single
// conditional read-modify-writes on one record, last write wins.
type Store interface {
	Get(ctx context.Context, id string) (Profile, error)
	Update(ctx context.Context, id string, update Update) (Profile, error)
}
