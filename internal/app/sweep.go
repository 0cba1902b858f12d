package app

import (
	"context"
	"log"
	"time"

	"quiz-room-service/internal/domain"
)

// SweepOnce bulk-deletes rooms past the retention window: finished rooms, and
// rooms that never progressed and have no participants left. Runs outside the
// request path; deletion is a plain bulk delete, not a per-room transaction.
func (g *Gateway) SweepOnce(ctx context.Context, retention time.Duration) (int, error) {
	rooms, err := g.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := g.now().Add(-retention)
	var stale []string
	for _, room := range rooms {
		switch {
		case room.Status == domain.StatusFinished:
			finishedAt := room.CreatedAt
			if room.FinishedAt != nil {
				finishedAt = *room.FinishedAt
			}
			if finishedAt.Before(cutoff) {
				stale = append(stale, room.Code)
			}
		case room.Status == domain.StatusWaiting && len(room.Participants) == 0:
			if room.CreatedAt.Before(cutoff) {
				stale = append(stale, room.Code)
			}
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := g.store.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	for _, code := range stale {
		g.broadcast(code, domain.Event{Type: domain.EventRoomDeleted, Payload: domain.RoomDeletedPayload{}})
		g.detachRoom(code)
	}
	return len(stale), nil
}

// RunSweeper periodically sweeps stale rooms until the context is canceled.
func (g *Gateway) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.SweepOnce(ctx, retention)
			if err != nil {
				log.Printf("room sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("room sweep removed %d stale rooms", n)
			}
		}
	}
}
