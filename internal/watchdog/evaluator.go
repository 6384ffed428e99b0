package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/ytfetchd/internal/eventbus"
)

// AlarmPublisher is the subset of *eventbus.Producer the evaluator needs,
// satisfied by a Producer constructed against the alarms topic.
type AlarmPublisher interface {
	PublishAlarm(ctx context.Context, ev eventbus.AlarmEvent) error
}

// Evaluator watches one client's backlog depth (queued + failed jobs) and
// walks it through CLEAR -> PENDING_ALARM -> ALARMING when the depth stays
// above Threshold for at least Duration, mirroring the teacher's
// Evaluator.evaluateThreshold breach/no-breach split. Trigger and clear
// transitions are published to the alarms topic rather than emailed
// directly; cmd/ytfetchd-notifier owns the actual send.
type Evaluator struct {
	states    *StateManager
	alarms    AlarmPublisher
	Threshold int
	Duration  time.Duration
}

// NewEvaluator builds an Evaluator with the given alarm parameters.
func NewEvaluator(states *StateManager, alarms AlarmPublisher, threshold int, duration time.Duration) *Evaluator {
	return &Evaluator{states: states, alarms: alarms, Threshold: threshold, Duration: duration}
}

// Evaluate reports the current backlog depth for client and lets the alarm
// state machine react.
func (e *Evaluator) Evaluate(ctx context.Context, client uint64, backlogDepth int) error {
	state, err := e.states.GetState(ctx, client)
	if err != nil {
		return err
	}

	now := time.Now()
	breached := backlogDepth > e.Threshold

	if breached {
		return e.handleBreach(ctx, client, backlogDepth, state, now)
	}
	return e.handleNoBreach(ctx, client, state, now)
}

func (e *Evaluator) handleBreach(ctx context.Context, client uint64, depth int, state *State, now time.Time) error {
	switch state.Status {
	case StatusClear:
		return e.states.SetState(ctx, client, &State{
			Status:          StatusPending,
			BreachStartTime: now,
			LastChecked:     now,
			BacklogDepth:    depth,
		})

	case StatusPending:
		if now.Sub(state.BreachStartTime) >= e.Duration {
			return e.trigger(ctx, client, depth, state, now)
		}
		state.LastChecked = now
		state.BacklogDepth = depth
		return e.states.SetState(ctx, client, state)

	case StatusActive:
		state.LastChecked = now
		state.BacklogDepth = depth
		return e.states.SetState(ctx, client, state)

	default:
		return fmt.Errorf("watchdog: unknown status %q", state.Status)
	}
}

func (e *Evaluator) handleNoBreach(ctx context.Context, client uint64, state *State, now time.Time) error {
	switch state.Status {
	case StatusClear:
		return nil

	case StatusPending:
		return e.states.DeleteState(ctx, client)

	case StatusActive:
		return e.clear(ctx, client, state, now)

	default:
		return nil
	}
}

func (e *Evaluator) trigger(ctx context.Context, client uint64, depth int, state *State, now time.Time) error {
	fmt.Printf("watchdog: backlog alarm triggered for client %d (depth=%d, threshold=%d)\n", client, depth, e.Threshold)

	state.Status = StatusActive
	state.LastChecked = now
	state.BacklogDepth = depth
	if err := e.states.SetState(ctx, client, state); err != nil {
		return err
	}

	return e.publish(ctx, client, "triggered", depth)
}

func (e *Evaluator) clear(ctx context.Context, client uint64, state *State, now time.Time) error {
	fmt.Printf("watchdog: backlog alarm cleared for client %d\n", client)

	if err := e.states.DeleteState(ctx, client); err != nil {
		return err
	}

	return e.publish(ctx, client, "cleared", 0)
}

func (e *Evaluator) publish(ctx context.Context, client uint64, kind string, depth int) error {
	if e.alarms == nil {
		return nil
	}
	ev := eventbus.AlarmEvent{
		EventID:   uuid.NewString(),
		Client:    client,
		Kind:      kind,
		Depth:     depth,
		Threshold: e.Threshold,
		At:        time.Now(),
	}
	if err := e.alarms.PublishAlarm(ctx, ev); err != nil {
		return fmt.Errorf("watchdog: publish alarm event: %w", err)
	}
	return nil
}
