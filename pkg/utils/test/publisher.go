package testutils

import (
	"context"
	"sync"

	"github.com/sightlinelabs/vizbench/pkg/eventstream"
)

// MockPublisher captures published record events for assertions.
type MockPublisher struct {
	mu     sync.Mutex
	events []eventstream.RecordPersistedEvent

	// PublishErr, when set, is returned from every PublishRecord call.
	PublishErr error
	closed     bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) PublishRecord(_ context.Context, event *eventstream.RecordPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilRecordEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.events = append(p.events, *event)
	return nil
}

func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MockPublisher) Events() []eventstream.RecordPersistedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eventstream.RecordPersistedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MockPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
