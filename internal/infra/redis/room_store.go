package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// RoomStore persists room documents as JSON envelopes in Redis. Optimistic
// concurrency rides on WATCH/MULTI: the key is watched across the version
// check, so a competing write aborts the EXEC and surfaces as a version
// conflict for the transaction wrapper to retry.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

// envelope pairs the document with its version token.
type envelope struct {
	Version int64       `json:"version"`
	Room    domain.Room `json:"room"`
}

// NewRoomStore creates the store. ttl is a safety bound on key age, refreshed
// on every write; the sweeper owns the real room lifecycle.
func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(envelope{Version: 1, Room: *room})
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(room.Code), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if !ok {
		return domain.ErrRoomExists
	}
	return nil
}

func (s *RoomStore) Load(ctx context.Context, code string) (*domain.Room, int64, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load room: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, fmt.Errorf("unmarshal room: %w", err)
	}
	return &env.Room, env.Version, nil
}

func (s *RoomStore) Save(ctx context.Context, room *domain.Room, version int64) error {
	key := s.key(room.Code)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		var current envelope
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("unmarshal room: %w", err)
		}
		if current.Version != version {
			return domain.ErrVersionConflict
		}

		next, err := json.Marshal(envelope{Version: version + 1, Room: *room})
		if err != nil {
			return fmt.Errorf("marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		return err
	}, key)

	// An aborted EXEC means another writer touched the key after our check.
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	return err
}

func (s *RoomStore) Delete(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, s.key(code))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete rooms: %w", err)
	}
	return nil
}

func (s *RoomStore) List(ctx context.Context) ([]*domain.Room, error) {
	var rooms []*domain.Room
	iter := s.client.Scan(ctx, 0, s.key("*"), 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("unmarshal room: %w", err)
		}
		room := env.Room
		rooms = append(rooms, &room)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	return rooms, nil
}

func (s *RoomStore) key(code string) string {
	return "room:" + code
}

var _ app.RoomStore = (*RoomStore)(nil)
