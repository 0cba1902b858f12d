package memory

import (
	"context"
	"errors"
	"testing"

	"quiz-room-service/internal/domain"
)

func TestRoomStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()

	room := &domain.Room{Code: "ABC123", QuizID: "quiz-1", HostID: "host-1", Status: domain.StatusWaiting}
	if err := store.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, room); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}

	loaded, version, err := store.Load(ctx, "ABC123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}

	loaded.Status = domain.StatusPlaying
	if err := store.Save(ctx, loaded, version); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second writer holding the old version must be rejected.
	if err := store.Save(ctx, loaded, version); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	reloaded, version, _ := store.Load(ctx, "ABC123")
	if version != 2 || reloaded.Status != domain.StatusPlaying {
		t.Fatalf("expected version 2 playing, got %d %s", version, reloaded.Status)
	}
}

func TestRoomStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()

	room := &domain.Room{Code: "ABC123", Participants: []domain.Participant{{IdentityKey: "alice", Score: 100}}}
	if err := store.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _, _ := store.Load(ctx, "ABC123")
	first.Participants[0].Score = 999

	second, _, _ := store.Load(ctx, "ABC123")
	if second.Participants[0].Score != 100 {
		t.Fatalf("mutating a loaded room must not leak into the store, got %d", second.Participants[0].Score)
	}
}

func TestRoomStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()

	for _, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		if err := store.Create(ctx, &domain.Room{Code: code}); err != nil {
			t.Fatalf("create %s: %v", code, err)
		}
	}

	if err := store.Delete(ctx, "AAAAAA", "CCCCCC", "MISSING"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rooms, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Code != "BBBBBB" {
		t.Fatalf("expected only BBBBBB left, got %+v", rooms)
	}

	if _, _, err := store.Load(ctx, "AAAAAA"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}
