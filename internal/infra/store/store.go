// Package store persists room records in Redis.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/osa030/wejay/internal/domain/history"
	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/room"
	"github.com/osa030/wejay/internal/domain/track"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

const (
	historyLimit  = 1000
	historyTTL    = 365 * 24 * time.Hour
	playCountTTL  = 90 * 24 * time.Hour
	scanBatchSize = 100
)

// Store is the per-room record store.
// Each method reads or writes a single key; there are no multi-key
// transactions and concurrent writers are last-write-wins.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
	PutRoom(ctx context.Context, r *room.Room) error
	ListRooms(ctx context.Context) ([]*room.Room, error)

	GetQueue(ctx context.Context, roomID string) ([]track.Entry, error)
	PutQueue(ctx context.Context, roomID string, entries []track.Entry) error

	GetPlayback(ctx context.Context, roomID string) (*playback.State, error)
	PutPlayback(ctx context.Context, roomID string, s playback.State) error

	AppendHistory(ctx context.Context, roomID, userID string, e history.Entry) error
	GetHistory(ctx context.Context, roomID, userID string) ([]history.Entry, error)
	IncrPlayCount(ctx context.Context, roomID, userID, trackID string) error
	GetPlayCounts(ctx context.Context, roomID, userID string) ([]history.PlayCount, error)
}

// queueRecord is the stored form of the ordered queue.
type queueRecord struct {
	Tracks []track.Entry `json:"tracks"`
}

func infoKey(roomID string) string     { return fmt.Sprintf("room:%s:info", roomID) }
func queueKey(roomID string) string    { return fmt.Sprintf("room:%s:queue", roomID) }
func playbackKey(roomID string) string { return fmt.Sprintf("room:%s:playback", roomID) }

func historyKey(roomID, userID string) string {
	return fmt.Sprintf("room:%s:user:%s:history", roomID, userID)
}

func playCountKey(roomID, userID, trackID string) string {
	return fmt.Sprintf("room:%s:user:%s:track:%s", roomID, userID, trackID)
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore creates a store backed by rdb.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "failed to ping redis")
	}
	return nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "failed to get %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", key)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return nil
}

// GetRoom returns ErrNotFound if the room has never been created.
func (s *RedisStore) GetRoom(ctx context.Context, roomID string) (*room.Room, error) {
	var r room.Room
	if err := s.getJSON(ctx, infoKey(roomID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) PutRoom(ctx context.Context, r *room.Room) error {
	return s.setJSON(ctx, infoKey(r.ID), r)
}

// ListRooms returns every stored room ordered by creation time.
func (s *RedisStore) ListRooms(ctx context.Context) ([]*room.Room, error) {
	keys, err := s.scan(ctx, "room:*:info")
	if err != nil {
		return nil, err
	}

	rooms := make([]*room.Room, 0, len(keys))
	for _, key := range keys {
		var r room.Room
		if err := s.getJSON(ctx, key, &r); err != nil {
			// deleted between SCAN and GET
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		rooms = append(rooms, &r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// GetQueue returns an empty queue when none is stored.
func (s *RedisStore) GetQueue(ctx context.Context, roomID string) ([]track.Entry, error) {
	var rec queueRecord
	if err := s.getJSON(ctx, queueKey(roomID), &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []track.Entry{}, nil
		}
		return nil, err
	}
	if rec.Tracks == nil {
		rec.Tracks = []track.Entry{}
	}
	return rec.Tracks, nil
}

func (s *RedisStore) PutQueue(ctx context.Context, roomID string, entries []track.Entry) error {
	if entries == nil {
		entries = []track.Entry{}
	}
	return s.setJSON(ctx, queueKey(roomID), queueRecord{Tracks: entries})
}

// GetPlayback returns nil without error when no state is stored.
func (s *RedisStore) GetPlayback(ctx context.Context, roomID string) (*playback.State, error) {
	var st playback.State
	if err := s.getJSON(ctx, playbackKey(roomID), &st); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *RedisStore) PutPlayback(ctx context.Context, roomID string, st playback.State) error {
	return s.setJSON(ctx, playbackKey(roomID), st)
}

// AppendHistory adds the entry scored by its timestamp and keeps the newest
// entries only.
func (s *RedisStore) AppendHistory(ctx context.Context, roomID, userID string, e history.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to encode history entry")
	}

	key := historyKey(roomID, userID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(e.Timestamp.UnixMilli()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, -historyLimit-1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to append history %s", key)
	}
	return nil
}

// GetHistory returns entries oldest first.
func (s *RedisStore) GetHistory(ctx context.Context, roomID, userID string) ([]history.Entry, error) {
	key := historyKey(roomID, userID)
	members, err := s.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read history %s", key)
	}

	entries := make([]history.Entry, 0, len(members))
	for _, m := range members {
		var e history.Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, errors.Wrapf(err, "failed to decode history entry in %s", key)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) IncrPlayCount(ctx context.Context, roomID, userID, trackID string) error {
	key := playCountKey(roomID, userID, trackID)
	pipe := s.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, playCountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to increment %s", key)
	}
	return nil
}

// GetPlayCounts returns play counts ordered by track ID.
func (s *RedisStore) GetPlayCounts(ctx context.Context, roomID, userID string) ([]history.PlayCount, error) {
	prefix := fmt.Sprintf("room:%s:user:%s:track:", roomID, userID)
	keys, err := s.scan(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}

	counts := make([]history.PlayCount, 0, len(keys))
	for _, key := range keys {
		v, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get %s", key)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid play count in %s", key)
		}
		counts = append(counts, history.PlayCount{
			TrackID: strings.TrimPrefix(key, prefix),
			Count:   n,
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		return counts[i].TrackID < counts[j].TrackID
	})
	return counts, nil
}

func (s *RedisStore) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", pattern)
	}
	return keys, nil
}
