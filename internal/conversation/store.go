package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long an idle conversation survives in Valkey.
	DefaultTTL = 24 * time.Hour

	keyPrefix = "conversation:"
)

// Store keeps one wizard state per user in Valkey as JSON.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a conversation store backed by the given Valkey client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client, ttl: DefaultTTL, now: time.Now}
}

func key(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

// Get returns the user's conversation, creating a fresh one at the
// greeting step when none exists or the stored one has expired.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (State, error) {
	payload, err := s.client.Get(ctx, key(userID)).Bytes()
	if err == redis.Nil {
		st := New(s.now())
		if err := s.Save(ctx, userID, st); err != nil {
			return State{}, err
		}
		return st, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("conversation get: %w", err)
	}

	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return State{}, fmt.Errorf("conversation unmarshal: %w", err)
	}
	if !st.Step.Valid() {
		return New(s.now()), nil
	}
	return st, nil
}

// Save writes the state and resets its TTL.
func (s *Store) Save(ctx context.Context, userID uuid.UUID, st State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("conversation marshal: %w", err)
	}
	if err := s.client.Set(ctx, key(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("conversation save: %w", err)
	}
	return nil
}

// Delete removes the user's conversation. The next Get starts over.
func (s *Store) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("conversation delete: %w", err)
	}
	return nil
}
