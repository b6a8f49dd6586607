// Package worker is the background execution context of the device: periodic
// jobs, connectivity hooks, and the message channel toward the foreground.
package worker

import (
	"context"
	"time"

	"github.com/angelmondragon/tillq/pkg/enums"
)

// Message crosses the boundary between the background worker and the foreground.
type Message struct {
	Type    enums.MessageType          `json:"type"`
	Tag     string                     `json:"tag,omitempty"`
	Action  enums.NotificationAction   `json:"action,omitempty"`
	Title   string                     `json:"title,omitempty"`
	Body    string                     `json:"body,omitempty"`
	Actions []enums.NotificationAction `json:"actions,omitempty"`
	Payload map[string]any             `json:"payload,omitempty"`
}

// JobFunc is one run of a periodic task.
type JobFunc func(ctx context.Context) error

// ConnectivityHandler reacts to connectivity changes observed by the platform.
type ConnectivityHandler func(ctx context.Context, online bool)

// Scheduler is what the queue needs from the platform's background runtime.
// Execution is best-effort: the platform may delay or skip runs.
type Scheduler interface {
	RunPeriodically(name string, interval time.Duration, job JobFunc) error
	OnConnectivityChange(fn ConnectivityHandler)
	PostMessage(ctx context.Context, msg Message) error
}

// Sink receives messages on the foreground side.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}
