package recognition

import (
	"context"
	"sync"
)

// MockCapability replays a scripted event sequence. Used in tests and as the
// development backend.
type MockCapability struct {
	Script []Event
}

func NewMockCapability(script []Event) *MockCapability {
	return &MockCapability{Script: script}
}

func (m *MockCapability) OpenSession(ctx context.Context, _ string) (Session, error) {
	s := &mockSession{
		events: make(chan Event, len(m.Script)+1),
		stop:   make(chan struct{}),
	}
	go s.run(ctx, m.Script)
	return s, nil
}

type mockSession struct {
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

func (s *mockSession) run(ctx context.Context, script []Event) {
	defer close(s.events)

	for _, event := range script {
		select {
		case s.events <- event:
		case <-ctx.Done():
			return
		}
		if event.Kind == EventError || event.Kind == EventEnd {
			return
		}
	}

	select {
	case <-s.stop:
	case <-ctx.Done():
		return
	}
	s.events <- Event{Kind: EventEnd}
}

func (s *mockSession) Events() <-chan Event { return s.events }

func (s *mockSession) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
