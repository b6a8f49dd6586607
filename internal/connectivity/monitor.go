package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
)

// Status is the device's reachability as reported by the platform.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

const historyLimit = 100

// Event records one status transition.
type Event struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// RestoreFunc is invoked once per Offline to Online transition that survives
// the debounce window.
type RestoreFunc func(ctx context.Context, reason string)

// Listener observes every transition.
type Listener func(ctx context.Context, ev Event)

type MonitorParams struct {
	Logger    *logger.Logger
	OnRestore RestoreFunc
	Debounce  time.Duration
	Clock     func() time.Time
}

// Monitor turns raw online/offline signals into transitions and drain triggers.
// It starts Offline so that the first online report after boot drains the queue.
type Monitor struct {
	logg      *logger.Logger
	onRestore RestoreFunc
	debounce  time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	status    Status
	listeners []Listener
	pending   *time.Timer
	history   []Event
}

func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.OnRestore == nil {
		return nil, errors.New("restore callback is required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		logg:      params.Logger,
		onRestore: params.OnRestore,
		debounce:  params.Debounce,
		now:       now,
		status:    Offline,
	}, nil
}

// Subscribe registers fn for every future transition.
func (m *Monitor) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) IsOnline() bool {
	return m.Status() == Online
}

// History returns the most recent transitions, oldest first.
func (m *Monitor) History() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}

// Observe feeds one platform signal. Repeated signals with the same value are
// ignored; a drop back to Offline cancels a restore still inside its debounce.
func (m *Monitor) Observe(ctx context.Context, online bool) {
	next := Offline
	if online {
		next = Online
	}

	m.mu.Lock()
	if next == m.status {
		m.mu.Unlock()
		return
	}
	ev := Event{From: m.status, To: next, At: m.now().UTC()}
	m.status = next
	m.history = append(m.history, ev)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	restoreNow := false
	if next == Online {
		if m.debounce > 0 {
			restoreCtx := context.WithoutCancel(ctx)
			var timer *time.Timer
			timer = time.AfterFunc(m.debounce, func() {
				m.mu.Lock()
				fire := m.pending == timer && m.status == Online
				if fire {
					m.pending = nil
				}
				m.mu.Unlock()
				if fire {
					m.onRestore(restoreCtx, "connectivity_restored")
				}
			})
			m.pending = timer
		} else {
			restoreNow = true
		}
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"from": ev.From,
		"to":   ev.To,
	}), "connectivity changed")
	for _, fn := range listeners {
		fn(ctx, ev)
	}
	if restoreNow {
		m.onRestore(ctx, "connectivity_restored")
	}
}

// Stop cancels a pending debounced restore.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}
