// Package notify surfaces queue state to the user through tagged notifications
// and relays notification actions back to the foreground.
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/tillq/pkg/enums"
)

const (
	TagSync  = "tillq-sync"
	TagStale = "tillq-stale-operations"
)

// Notification is one displayed prompt. Tag is its identity.
type Notification struct {
	Tag     string                     `json:"tag"`
	Title   string                     `json:"title"`
	Body    string                     `json:"body,omitempty"`
	Actions []enums.NotificationAction `json:"actions,omitempty"`
	ShownAt time.Time                  `json:"shown_at"`
	Shows   int                        `json:"shows"`
}

// Center holds displayed notifications keyed by tag.
type Center struct {
	mu    sync.Mutex
	items map[string]Notification
	now   func() time.Time
}

func NewCenter(now func() time.Time) *Center {
	if now == nil {
		now = time.Now
	}
	return &Center{items: make(map[string]Notification), now: now}
}

// Show displays n, replacing any notification that carries the same tag.
func (c *Center) Show(n Notification) Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	n.ShownAt = c.now().UTC()
	n.Shows = c.items[n.Tag].Shows + 1
	c.items[n.Tag] = n
	return n
}

// Close removes the notification with tag and reports whether one was shown.
func (c *Center) Close(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[tag]; !ok {
		return false
	}
	delete(c.items, tag)
	return true
}

func (c *Center) Get(tag string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[tag]
	return n, ok
}

// List returns displayed notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	out := make([]Notification, 0, len(c.items))
	for _, n := range c.items {
		out = append(out, n)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShownAt.Equal(out[j].ShownAt) {
			return out[i].Tag < out[j].Tag
		}
		return out[i].ShownAt.Before(out[j].ShownAt)
	})
	return out
}
