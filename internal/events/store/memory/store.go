package memory

import (
	"context"
	"maps"
	"sync"

	"proofdrop/internal/events"
)

type Store struct {
	mu     sync.RWMutex
	events []events.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Attributes = maps.Clone(event.Attributes)
	s.events = append(s.events, event)
	return nil
}

func (s *Store) List(_ context.Context, filter events.Filter) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []events.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
