// Package watchdog tracks each client's download backlog depth and raises
// an alarm when it has stayed above a threshold for too long, the same
// breach/pending/clear state machine the teacher runs for weather
// thresholds, retargeted at queue depth instead of a sensor reading.
package watchdog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a backlog alarm's position in its lifecycle.
type Status string

const (
	StatusClear   Status = "CLEAR"
	StatusPending Status = "PENDING_ALARM"
	StatusActive  Status = "ALARMING"
)

// State is one client's current backlog alarm state.
type State struct {
	Status          Status    `json:"status"`
	BreachStartTime time.Time `json:"breach_start_time"`
	LastChecked     time.Time `json:"last_checked"`
	BacklogDepth    int       `json:"backlog_depth"`
}

// StateManager persists backlog alarm state in Redis, one key per client.
type StateManager struct {
	redis *redis.Client
}

// NewStateManager wraps an existing Redis client.
func NewStateManager(client *redis.Client) *StateManager {
	return &StateManager{redis: client}
}

func stateKey(client uint64) string {
	return fmt.Sprintf("backlog_state:%d", client)
}

// GetState returns client's current state, or a fresh CLEAR state if none
// is recorded yet.
func (sm *StateManager) GetState(ctx context.Context, client uint64) (*State, error) {
	data, err := sm.redis.Get(ctx, stateKey(client)).Result()
	if err == redis.Nil {
		return &State{Status: StatusClear}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watchdog: get state: %w", err)
	}

	var s State
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("watchdog: unmarshal state: %w", err)
	}
	return &s, nil
}

// SetState saves client's state with a 7-day expiry, auto-cleaning up
// stale entries for clients that never reconnect.
func (sm *StateManager) SetState(ctx context.Context, client uint64, s *State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("watchdog: marshal state: %w", err)
	}
	if err := sm.redis.Set(ctx, stateKey(client), data, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("watchdog: set state: %w", err)
	}
	return nil
}

// DeleteState returns client to CLEAR by removing its recorded state.
func (sm *StateManager) DeleteState(ctx context.Context, client uint64) error {
	return sm.redis.Del(ctx, stateKey(client)).Err()
}
