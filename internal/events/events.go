// Package events defines the domain events the social core emits and the
// publishers that deliver them. Publishing is best effort: callers log
// failures and never roll back the write that produced the event.
package events

import (
	"context"
	"sync"

	"github.com/humancuration/cpc-core/internal/models"
)

// Event types.
const (
	TypePostCreated         = "post.created"
	TypeRelationshipCreated = "relationship.created"
	TypeRelationshipRemoved = "relationship.removed"
)

// Event is one domain occurrence. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type         string         `json:"type"`
	OccurredAt   int64          `json:"occurred_at"`
	Post         *models.Post   `json:"post,omitempty"`
	Relationship *models.Follow `json:"relationship,omitempty"`
}

// Key returns the partition key for the event: the id of the acting user,
// so one user's events keep their relative order.
func (e Event) Key() string {
	switch {
	case e.Post != nil:
		return string(e.Post.AuthorID)
	case e.Relationship != nil:
		return string(e.Relationship.FollowerID)
	}
	return ""
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// MemoryPublisher records events in memory. Used by tests and by embedded
// deployments that consume events in process.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event.
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Reset drops all recorded events.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// Close is a no-op.
func (p *MemoryPublisher) Close() error { return nil }

// FanoutPublisher forwards each event to every wrapped publisher. All
// targets see the event even when one fails; the first error is returned.
type FanoutPublisher struct {
	targets []Publisher
}

var _ Publisher = (*FanoutPublisher)(nil)

// NewFanout composes publishers into one.
func NewFanout(targets ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

// Publish delivers the event to every target.
func (p *FanoutPublisher) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, target := range p.targets {
		if err := target.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every target.
func (p *FanoutPublisher) Close() error {
	var firstErr error
	for _, target := range p.targets {
		if err := target.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
