package goals

import (
	"log/slog"
	"time"

	"github.com/hyperengineering/nestegg/internal/types"
)

// EventType names a committed change to the goal collection.
type EventType string

const (
	EventGoalCreated        EventType = "goal_created"
	EventGoalUpdated        EventType = "goal_updated"
	EventGoalRemoved        EventType = "goal_removed"
	EventTransactionAdded   EventType = "transaction_added"
	EventTransactionRemoved EventType = "transaction_removed"
	EventGoalCompleted      EventType = "goal_completed"
	EventGoalReopened       EventType = "goal_reopened"
	EventGoalsReplaced      EventType = "goals_replaced"
)

// Event describes one committed change. Goal is a copy of the goal after the
// change and is nil for removals and bulk replacement.
type Event struct {
	Type          EventType
	GoalID        string
	TransactionID string
	Goal          *types.Goal
	At            time.Time
}

// Listener receives committed changes. Listeners run synchronously after the
// store lock is released and must not block.
type Listener func(Event)

// Subscribe registers l for every committed change and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = l

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) emit(events []Event) {
	if len(events) == 0 {
		return
	}

	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.subMu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			notify(l, ev)
		}
	}
}

func notify(l Listener, ev Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("goal listener panicked",
				"component", "goals",
				"event", string(ev.Type),
				"goal_id", ev.GoalID,
				"error", recovered,
			)
		}
	}()
	l(ev)
}
