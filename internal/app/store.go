package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"quiz-room-service/internal/domain"
)

// RoomStore abstracts how room documents are persisted (in-memory, Redis, etc).
// Save must reject a write whose version no longer matches the stored document
// with domain.ErrVersionConflict; that check is the only concurrency control in
// the system.
type RoomStore interface {
	Create(ctx context.Context, room *domain.Room) error
	Load(ctx context.Context, code string) (*domain.Room, int64, error)
	Save(ctx context.Context, room *domain.Room, version int64) error
	Delete(ctx context.Context, codes ...string) error
	List(ctx context.Context) ([]*domain.Room, error)
}

// TxOutcome tags the result of a transaction callback.
type TxOutcome int

const (
	// TxMutated means the callback changed the room and it must be persisted.
	TxMutated TxOutcome = iota
	// TxNoop means nothing changed; the write (and version bump) is skipped.
	TxNoop
)

const (
	txMaxAttempts = 5
	txBackoffMin  = 100 * time.Millisecond
	txBackoffMax  = 300 * time.Millisecond
)

// RunRoomTx loads the room, applies fn and persists the result with the loaded
// version as precondition. A conflicting concurrent writer triggers a reload
// and retry with randomized backoff to de-correlate competing writers; the
// budget exhausting surfaces domain.ErrBusy. Every room mutation in the system
// goes through here, there is no unguarded write path.
func RunRoomTx[T any](ctx context.Context, store RoomStore, code string, fn func(room *domain.Room) (T, TxOutcome, error)) (T, error) {
	var zero T

	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		room, version, err := store.Load(ctx, code)
		if err != nil {
			return zero, err
		}

		result, outcome, err := fn(room)
		if err != nil {
			return zero, err
		}
		if outcome == TxNoop {
			return result, nil
		}

		err = store.Save(ctx, room, version)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return zero, err
		}

		select {
		case <-time.After(txBackoff()):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, domain.ErrBusy
}

func txBackoff() time.Duration {
	spread := int64(txBackoffMax - txBackoffMin)
	return txBackoffMin + time.Duration(rand.Int63n(spread+1))
}
