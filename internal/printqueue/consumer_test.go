package printqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillq/pkg/db/dbtest"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
)

func newConsumer(t *testing.T, svc *Service, printer Printer, guard claimGuard, device string, feed *fakeFeed) *Consumer {
	t.Helper()
	params := ConsumerParams{
		Service:      svc,
		Printer:      printer,
		Logger:       testLogger(),
		DeviceID:     device,
		TenantID:     "tenant-a",
		PollInterval: 10 * time.Millisecond,
	}
	if guard != nil {
		params.Guard = guard
	}
	if feed != nil {
		params.Feed = feed
	}
	consumer, err := NewConsumer(params)
	require.NoError(t, err)
	return consumer
}

func TestProcessPendingPrintsAndMarks(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a := enqueueTicket(t, svc, "tenant-a")
	b := enqueueTicket(t, svc, "tenant-a")
	other := enqueueTicket(t, svc, "tenant-b")

	printer := &countingPrinter{}
	consumer := newConsumer(t, svc, printer, nil, "till-1", nil)

	handled, err := consumer.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, 2, printer.count())

	job, err := svc.Get(ctx, "tenant-a", a)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPrinted, job.Status)
	job, err = svc.Get(ctx, "tenant-a", b)
	require.NoError(t, err)
	assert.Equal(t, "till-1", *job.PrintedByDevice)

	untouched, err := svc.Get(ctx, "tenant-b", other)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPending, untouched.Status, "consumer only serves its tenant")

	handled, err = consumer.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestProcessPendingMarksPrinterFailure(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")

	consumer := newConsumer(t, svc, &countingPrinter{fail: errPaperOut}, nil, "till-1", nil)
	_, err := consumer.ProcessPending(ctx)
	require.NoError(t, err)

	job, err := svc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobFailed, job.Status)
	assert.Equal(t, "paper out", *job.LastError)
}

func TestTwoDevicesPrintEachJobOnce(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		enqueueTicket(t, svc, "tenant-a")
	}

	guard := newMemoryGuard()
	printerA := &countingPrinter{delay: time.Millisecond}
	printerB := &countingPrinter{delay: time.Millisecond}
	consumerA := newConsumer(t, svc, printerA, guard, "till-1", nil)
	consumerB := newConsumer(t, svc, printerB, guard, "till-2", nil)

	var wg sync.WaitGroup
	for _, c := range []*Consumer{consumerA, consumerB} {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			_, err := c.ProcessPending(ctx)
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 5, printerA.count()+printerB.count(), "every job printed exactly once")
	remaining, err := svc.PollPending(ctx, "tenant-a", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestGuardErrorFallsBackToConditionalUpdate(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")

	guard := newMemoryGuard()
	guard.err = errors.New("redis down")
	printer := &countingPrinter{}
	consumer := newConsumer(t, svc, printer, guard, "till-1", nil)

	handled, err := consumer.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	job, err := svc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPrinted, job.Status)
}

func TestRunWakesOnFeedAndStopsOnCancel(t *testing.T) {
	feed := newFakeFeed()
	svc := newTestService(t, feed)
	printer := &countingPrinter{}
	consumer := newConsumer(t, svc, printer, nil, "till-1", feed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	enqueueTicket(t, svc, "tenant-a")
	require.Eventually(t, func() bool { return printer.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	feed.mu.Lock()
	assert.True(t, feed.closed)
	feed.mu.Unlock()
}

func TestRunPollsWhenFeedUnavailable(t *testing.T) {
	feed := newFakeFeed()
	feed.subErr = errors.New("no redis")
	svc := newTestService(t, nil)
	printer := &countingPrinter{}
	consumer := newConsumer(t, svc, printer, nil, "till-1", feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = consumer.Run(ctx) }()

	enqueueTicket(t, svc, "tenant-a")
	require.Eventually(t, func() bool { return printer.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestNewConsumerValidation(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := NewConsumer(ConsumerParams{Service: svc, Printer: &countingPrinter{}, Logger: testLogger()})
	assert.Error(t, err)
	_, err = NewConsumer(ConsumerParams{Service: svc, Logger: testLogger(), DeviceID: "d", TenantID: "t"})
	assert.Error(t, err)
}

func TestPrintedJobIsFinalizedWithoutReprintAfterStatusWriteFails(t *testing.T) {
	conn := dbtest.OpenHosted(t)
	svc := newTestServiceOn(t, conn, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")
	failFirstUpdates(t, conn, 1)

	guard := newMemoryGuard()
	printer := &countingPrinter{}
	consumer := newConsumer(t, svc, printer, guard, "till-1", nil)

	_, err := consumer.ProcessPending(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 1, printer.count())
	assert.Equal(t, "till-1", guard.owner(id), "claim is kept while the status write is outstanding")

	handled, err := consumer.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, printer.count(), "ticket must not print twice")

	job, err := svc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPrinted, job.Status)
	assert.Equal(t, "till-1", *job.PrintedByDevice)
}

func TestPrintedJobIsFinalizedWithoutGuard(t *testing.T) {
	conn := dbtest.OpenHosted(t)
	svc := newTestServiceOn(t, conn, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")
	failFirstUpdates(t, conn, 1)

	printer := &countingPrinter{}
	consumer := newConsumer(t, svc, printer, nil, "till-1", nil)

	_, err := consumer.ProcessPending(ctx)
	require.Error(t, err)
	_, err = consumer.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, printer.count())

	job, err := svc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPrinted, job.Status)
}

func TestFailedPrintReleasesClaimWhenStatusWriteFails(t *testing.T) {
	conn := dbtest.OpenHosted(t)
	svc := newTestServiceOn(t, conn, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")
	failFirstUpdates(t, conn, 1)

	guard := newMemoryGuard()
	printer := &countingPrinter{fail: errPaperOut}
	consumer := newConsumer(t, svc, printer, guard, "till-1", nil)

	_, err := consumer.ProcessPending(ctx)
	require.Error(t, err)
	assert.Empty(t, guard.owner(id), "claim released so the ticket can be retried")

	printer.mu.Lock()
	printer.fail = nil
	printer.mu.Unlock()
	other := newConsumer(t, svc, printer, guard, "till-2", nil)
	handled, err := other.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	job, err := svc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPrinted, job.Status)
	assert.Equal(t, "till-2", *job.PrintedByDevice)
}

func TestOwnClaimFromEarlierProcessIsHonoured(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")

	guard := newMemoryGuard()
	guard.owners[id] = "till-1"

	printer := &countingPrinter{}
	handled, err := newConsumer(t, svc, printer, guard, "till-2", nil).ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, handled)
	assert.Zero(t, printer.count())

	handled, err = newConsumer(t, svc, printer, guard, "till-1", nil).ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, 1, printer.count())
}
