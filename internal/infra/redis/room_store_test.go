package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-room-service/internal/domain"
)

func TestRoomStoreCreateAndLoad(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), time.Hour)

	room := &domain.Room{Code: "ABC123", QuizID: "quiz-1", HostID: "host-1", Status: domain.StatusWaiting}
	if err := store.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("room:ABC123") {
		t.Fatalf("expected redis key to be set")
	}
	if err := store.Create(ctx, room); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}

	loaded, version, err := store.Load(ctx, "ABC123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 1 || loaded.QuizID != "quiz-1" {
		t.Fatalf("unexpected load result v=%d %+v", version, loaded)
	}

	if _, _, err := store.Load(ctx, "MISSIN"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomStoreSaveDetectsConflicts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), time.Hour)

	if err := store.Create(ctx, &domain.Room{Code: "ABC123", Status: domain.StatusWaiting}); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, version, _ := store.Load(ctx, "ABC123")
	second, _, _ := store.Load(ctx, "ABC123")

	first.Status = domain.StatusPlaying
	if err := store.Save(ctx, first, version); err != nil {
		t.Fatalf("save: %v", err)
	}

	second.Status = domain.StatusFinished
	if err := store.Save(ctx, second, version); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict for stale writer, got %v", err)
	}

	reloaded, version, _ := store.Load(ctx, "ABC123")
	if version != 2 || reloaded.Status != domain.StatusPlaying {
		t.Fatalf("expected first writer to win, got v=%d %s", version, reloaded.Status)
	}
}

func TestRoomStoreDeleteAndList(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), time.Hour)

	for _, code := range []string{"AAAAAA", "BBBBBB"} {
		if err := store.Create(ctx, &domain.Room{Code: code}); err != nil {
			t.Fatalf("create %s: %v", code, err)
		}
	}

	rooms, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}

	if err := store.Delete(ctx, "AAAAAA", "BBBBBB"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("room:AAAAAA") || mr.Exists("room:BBBBBB") {
		t.Fatalf("expected keys removed")
	}
}

func TestAdvanceLockWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	lock := NewAdvanceLock(newClient(mr), 3*time.Second)

	ok, err := lock.TryAcquire(ctx, "ABC123")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = lock.TryAcquire(ctx, "ABC123")
	if err != nil || ok {
		t.Fatalf("second acquire within window must fail: ok=%v err=%v", ok, err)
	}
	if ok, _ := lock.TryAcquire(ctx, "XYZ789"); !ok {
		t.Fatalf("other rooms must not be blocked")
	}

	mr.FastForward(4 * time.Second)
	if ok, _ := lock.TryAcquire(ctx, "ABC123"); !ok {
		t.Fatalf("expired window must allow a new acquisition")
	}
}
