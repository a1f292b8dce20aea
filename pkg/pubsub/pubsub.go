package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the mod manager
const (
	TopicFolderStatus = "folder_status"
	TopicModChanged   = "mod_changed"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "folder_status", "mod_changed")
	Type    string          `json:"type"`    // Event type (e.g., "scanning", "parsing", "ready")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events. It is closed when the
	// subscription or the publisher is closed.
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// FolderStatus reports where the folder is in its refresh cycle
type FolderStatus struct {
	State   string `json:"state"`   // scanning, parsing, ready, error
	Message string `json:"message"` // Human-readable status message
	Mods    int    `json:"mods"`
	Pending int    `json:"pending"` // Parse tasks still in flight
	Edges   int    `json:"edges"`
	Batch   string `json:"batch,omitempty"`
}

// ModChanged is sent for every mod whose cached dependency counts changed
type ModChanged struct {
	InternalID      string `json:"internalId"`
	ModID           string `json:"modId"`
	Enabled         bool   `json:"enabled"`
	RequiresCount   int    `json:"requiresCount"`
	RequiredByCount int    `json:"requiredByCount"`
}
