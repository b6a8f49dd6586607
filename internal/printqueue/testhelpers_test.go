package printqueue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillq/pkg/db/dbtest"
	"github.com/angelmondragon/tillq/pkg/enums"
	"github.com/angelmondragon/tillq/pkg/logger"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeFeed struct {
	mu        sync.Mutex
	published []string
	ch        chan string
	subErr    error
	closed    bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan string, 8)}
}

func (f *fakeFeed) Publish(_ context.Context, channel string, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, channel)
	select {
	case f.ch <- channel:
	default:
	}
	return nil
}

func (f *fakeFeed) Subscribe(context.Context, string) (<-chan string, func() error, error) {
	if f.subErr != nil {
		return nil, nil, f.subErr
	}
	return f.ch, func() error {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *fakeFeed) PrintJobChannel(tenantID string) string {
	return "tq:print_jobs:" + tenantID
}

type memoryGuard struct {
	mu     sync.Mutex
	owners map[uuid.UUID]string
	err    error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{owners: make(map[uuid.UUID]string)}
}

func (g *memoryGuard) Claim(_ context.Context, _ string, id uuid.UUID, owner string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if _, taken := g.owners[id]; taken {
		return false, nil
	}
	g.owners[id] = owner
	return true, nil
}

func (g *memoryGuard) Owner(_ context.Context, _ string, id uuid.UUID) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owners[id], g.err
}

func (g *memoryGuard) Release(_ context.Context, _ string, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.owners, id)
	return g.err
}

func (g *memoryGuard) owner(id uuid.UUID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owners[id]
}

// failFirstUpdates makes the next n UPDATE statements on conn fail, like a
// dropped connection between printing and recording the status.
func failFirstUpdates(t *testing.T, conn *gorm.DB, n int32) {
	t.Helper()
	var remaining atomic.Int32
	remaining.Store(n)
	err := conn.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		if remaining.Add(-1) >= 0 {
			_ = tx.AddError(errors.New("connection reset by peer"))
		}
	})
	require.NoError(t, err)
}

type countingPrinter struct {
	mu      sync.Mutex
	printed []enums.PrintType
	fail    error
	delay   time.Duration
}

func (p *countingPrinter) Print(ctx context.Context, printType enums.PrintType, _ json.RawMessage) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.printed = append(p.printed, printType)
	return nil
}

func (p *countingPrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.printed)
}

var errPaperOut = errors.New("paper out")

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "printqueue-test", Output: io.Discard})
}

func newTestService(t *testing.T, feed *fakeFeed) *Service {
	t.Helper()
	return newTestServiceOn(t, dbtest.OpenHosted(t), feed)
}

func newTestServiceOn(t *testing.T, conn *gorm.DB, feed *fakeFeed) *Service {
	t.Helper()
	clock := &steppingClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	params := ServiceParams{
		Repository: NewRepository(conn),
		Logger:     testLogger(),
		Clock:      clock.Now,
	}
	if feed != nil {
		params.Feed = feed
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func enqueueTicket(t *testing.T, svc *Service, tenant string) uuid.UUID {
	t.Helper()
	job, err := svc.Enqueue(context.Background(), EnqueueInput{
		TenantID:  tenant,
		CreatedBy: "waiter-1",
		PrintType: enums.PrintKitchenTicket,
		Payload:   json.RawMessage(`{"table":4,"items":[{"name":"soup","qty":2}]}`),
	})
	require.NoError(t, err)
	return job.ID
}
