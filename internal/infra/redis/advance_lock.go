package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/app"
)

// AdvanceLock is the cross-instance AdvanceLocker: SETNX with a TTL, so a key
// that is still present means another advance fired within the window and the
// trigger is dropped. The key expires on its own, absorbing trailing
// duplicates from other instances.
type AdvanceLock struct {
	client *redis.Client
	window time.Duration
}

func NewAdvanceLock(client *redis.Client, window time.Duration) *AdvanceLock {
	return &AdvanceLock{client: client, window: window}
}

func (l *AdvanceLock) TryAcquire(ctx context.Context, roomCode string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(roomCode), time.Now().UnixMilli(), l.window).Result()
	if err != nil {
		return false, fmt.Errorf("acquire advance lock: %w", err)
	}
	return ok, nil
}

func (l *AdvanceLock) key(roomCode string) string {
	return "advance:" + roomCode
}

var _ app.AdvanceLocker = (*AdvanceLock)(nil)
