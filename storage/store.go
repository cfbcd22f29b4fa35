package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a delivery entry is absent or expired.
	ErrNotFound = errors.New("storage: entry not found")
	// ErrUnavailable wraps backend failures. Callers treat it as "nothing
	// stored" and degrade rather than surface it to users.
	ErrUnavailable = errors.New("storage: backend unavailable")
)

// Priority orders offline actions during replay. Higher drains first.
type Priority uint8

const (
	// PriorityLow is the default tier for queued mutations.
	PriorityLow Priority = iota
	// PriorityMedium covers status and auth traffic.
	PriorityMedium
	// PriorityHigh covers emergency and location traffic.
	PriorityHigh
)

// Entry is a cached payload with its expiry metadata. Timestamps are unix
// milliseconds.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Expires   int64           `json:"expires"`
}

// Action is a captured mutating request awaiting network availability. Seq
// is assigned by Add and fixes the append order inside the queue index.
type Action struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Priority  Priority          `json:"priority"`
	Seq       int64             `json:"seq"`
}

// Store persists both collections under the given prefix.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a store on top of the given Redis client.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the store's time source. Test hook; the zero store
// uses time.Now.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) deliveryKey(key string) string {
	return s.prefix + ":dlv:" + key
}

func (s *Store) deliveryIndexKey() string {
	return s.prefix + ":dlv:index"
}

func (s *Store) actionKey(id string) string {
	return s.prefix + ":act:" + id
}

func (s *Store) actionIndexKey() string {
	return s.prefix + ":act:index"
}

func (s *Store) actionSeqKey() string {
	return s.prefix + ":act:seq"
}

// Put stores a delivery payload under key. The Redis TTL mirrors the
// entry's expiry so the backend self-cleans even without DeleteExpired.
func (s *Store) Put(ctx context.Context, key string, entry Entry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ttl := time.UnixMilli(entry.Expires).Sub(s.now())
	if ttl <= 0 {
		return errors.New("storage: entry already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.deliveryKey(key), encoded, ttl)
		pipe.SAdd(ctx, s.deliveryIndexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get returns the delivery payload under key. Expired entries are purged as
// a side effect and reported as ErrNotFound; an entry is never served past
// its expiry.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.deliveryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.dropDelivery(ctx, key)
		return nil, ErrNotFound
	}

	if s.now().UnixMilli() >= entry.Expires {
		s.dropDelivery(ctx, key)
		return nil, ErrNotFound
	}

	return &entry, nil
}

// DeleteExpired walks the delivery index and removes entries past their
// expiry. Advisory cleanup: Get already rejects expired entries at read
// time. Returns the number of removed entries.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	keys, err := s.redis.SMembers(ctx, s.deliveryIndexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	removed := 0
	nowMs := s.now().UnixMilli()
	for _, key := range keys {
		data, err := s.redis.Get(ctx, s.deliveryKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Redis TTL already reaped it; drop the index member.
			s.redis.SRem(ctx, s.deliveryIndexKey(), key)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || nowMs >= entry.Expires {
			if dropErr := s.dropDelivery(ctx, key); dropErr != nil {
				return removed, dropErr
			}
			removed++
		}
	}

	return removed, nil
}

// ClearDeliveries removes the whole delivery collection.
func (s *Store) ClearDeliveries(ctx context.Context) error {
	keys, err := s.redis.SMembers(ctx, s.deliveryIndexKey()).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, s.deliveryKey(key))
		}
		pipe.Del(ctx, s.deliveryIndexKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Add appends an action to the queue. The sequence counter fixes FIFO order
// inside a priority tier; record and index land in one transaction.
func (s *Store) Add(ctx context.Context, action *Action) error {
	if action.ID == "" {
		return errors.New("storage: action id required")
	}

	seq, err := s.redis.Incr(ctx, s.actionSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	action.Seq = seq

	encoded, err := json.Marshal(action)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.actionKey(action.ID), encoded, 0)
		pipe.ZAdd(ctx, s.actionIndexKey(), redis.Z{Score: float64(seq), Member: action.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Actions returns every queued action in append order.
func (s *Store) Actions(ctx context.Context) ([]Action, error) {
	ids, err := s.redis.ZRange(ctx, s.actionIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	actions := make([]Action, 0, len(ids))
	for _, id := range ids {
		data, err := s.redis.Get(ctx, s.actionKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Index member without a record; heal the index.
			s.redis.ZRem(ctx, s.actionIndexKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		var action Action
		if err := json.Unmarshal(data, &action); err != nil {
			s.Remove(ctx, id)
			continue
		}
		actions = append(actions, action)
	}

	return actions, nil
}

// Remove deletes a single action after successful replay.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.actionIndexKey(), id)
		pipe.Del(ctx, s.actionKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ClearActions drops the whole queue. The only way a queued action is
// cancelled other than successful replay.
func (s *Store) ClearActions(ctx context.Context) error {
	ids, err := s.redis.ZRange(ctx, s.actionIndexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.actionKey(id))
		}
		pipe.Del(ctx, s.actionIndexKey())
		pipe.Del(ctx, s.actionSeqKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Counts reports the size of both collections.
func (s *Store) Counts(ctx context.Context) (deliveries, actions int, err error) {
	d, err := s.redis.SCard(ctx, s.deliveryIndexKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	a, err := s.redis.ZCard(ctx, s.actionIndexKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(d), int(a), nil
}

func (s *Store) dropDelivery(ctx context.Context, key string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.deliveryKey(key))
		pipe.SRem(ctx, s.deliveryIndexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
