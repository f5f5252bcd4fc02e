// Package redis persists room metadata: who created a room, its shareable
// code, and the scheduled class session it belongs to. Live signaling
// state never touches redis; rooms do not survive a process restart.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classpeer/signaling/config"
	"github.com/classpeer/signaling/internal/models"
)

// ErrNotFound is returned when no metadata exists for a room or code.
var ErrNotFound = errors.New("room not found")

const (
	// RoomCodeLength is the length of shareable room codes; identifiers
	// of this length are resolved through the code index first.
	RoomCodeLength = 6

	roomTTL = 24 * time.Hour
)

// Store wraps the redis client. Construct once in main and inject.
type Store struct {
	client *redis.Client
}

// NewStore connects to redis and verifies the connection.
func NewStore(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Store{client: client}, nil
}

// Close closes the redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// SaveRoom stores room metadata by ID and indexes the shareable code.
func (s *Store) SaveRoom(ctx context.Context, room models.RoomMetadata) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room metadata: %w", err)
	}

	if err := s.client.Set(ctx, "room:"+room.ID, data, roomTTL).Err(); err != nil {
		return fmt.Errorf("failed to store room: %w", err)
	}
	if err := s.client.Set(ctx, "code:"+room.Code, room.ID, roomTTL).Err(); err != nil {
		return fmt.Errorf("failed to store room code: %w", err)
	}
	return nil
}

// ResolveRoomID maps a shareable code or raw room ID to the room ID.
func (s *Store) ResolveRoomID(ctx context.Context, identifier string) (string, error) {
	if len(identifier) == RoomCodeLength {
		id, err := s.client.Get(ctx, "code:"+identifier).Result()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("failed to resolve room code: %w", err)
		}
		// Fall through: a 6-character string may also be a raw room ID.
	}
	return identifier, nil
}

// GetRoom loads room metadata by ID.
func (s *Store) GetRoom(ctx context.Context, roomID string) (models.RoomMetadata, error) {
	data, err := s.client.Get(ctx, "room:"+roomID).Result()
	if errors.Is(err, redis.Nil) {
		return models.RoomMetadata{}, ErrNotFound
	}
	if err != nil {
		return models.RoomMetadata{}, fmt.Errorf("failed to load room: %w", err)
	}

	var room models.RoomMetadata
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return models.RoomMetadata{}, fmt.Errorf("failed to parse room metadata: %w", err)
	}
	return room, nil
}

// DeleteRoom removes the metadata and code index for a room.
func (s *Store) DeleteRoom(ctx context.Context, room models.RoomMetadata) error {
	if err := s.client.Del(ctx, "room:"+room.ID, "code:"+room.Code).Err(); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}
