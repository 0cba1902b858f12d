package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// RoomStore is the in-memory implementation of app.RoomStore: a map guarded
// by a mutex with compare-and-swap on an integer version. Every Load hands out
// a deep copy so callers can never mutate the stored document outside Save.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*storedRoom
}

type storedRoom struct {
	data    []byte
	version int64
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*storedRoom)}
}

func (s *RoomStore) Create(_ context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.Code] = &storedRoom{data: data, version: 1}
	return nil
}

func (s *RoomStore) Load(_ context.Context, code string) (*domain.Room, int64, error) {
	s.mu.RLock()
	stored, ok := s.rooms[code]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, domain.ErrRoomNotFound
	}

	var room domain.Room
	if err := json.Unmarshal(stored.data, &room); err != nil {
		return nil, 0, fmt.Errorf("unmarshal room: %w", err)
	}
	return &room, stored.version, nil
}

func (s *RoomStore) Save(_ context.Context, room *domain.Room, version int64) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rooms[room.Code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if stored.version != version {
		return domain.ErrVersionConflict
	}
	s.rooms[room.Code] = &storedRoom{data: data, version: version + 1}
	return nil
}

func (s *RoomStore) Delete(_ context.Context, codes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		delete(s.rooms, code)
	}
	return nil
}

func (s *RoomStore) List(_ context.Context) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(s.rooms))
	for _, stored := range s.rooms {
		var room domain.Room
		if err := json.Unmarshal(stored.data, &room); err != nil {
			return nil, fmt.Errorf("unmarshal room: %w", err)
		}
		rooms = append(rooms, &room)
	}
	return rooms, nil
}

// Version exposes the stored version for a room, for tests asserting write counts.
func (s *RoomStore) Version(code string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stored, ok := s.rooms[code]; ok {
		return stored.version
	}
	return 0
}

var _ app.RoomStore = (*RoomStore)(nil)
