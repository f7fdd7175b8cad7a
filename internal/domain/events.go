package domain

import (
	"context"
	"time"
)

// EventCategory classifies domain events for cache invalidation
type EventCategory string

const (
	EventLeadCreated EventCategory = "lead_created"
	EventLeadUpdated EventCategory = "lead_updated"
	EventLeadDeleted EventCategory = "lead_deleted"
	EventStageChange EventCategory = "stage_change"
)

// Event is something that happened to a tenant's data
type Event struct {
	Category       EventCategory `json:"category"`
	OrganizationID string        `json:"organization_id"`
	EntityID       string        `json:"entity_id"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// EventPublisher delivers domain events to subscribers asynchronously.
// Publish never blocks the caller on subscriber work.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// EventHandler reacts to a published event
type EventHandler func(ctx context.Context, event Event)
