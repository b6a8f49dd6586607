package printqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
)

func TestEnqueueCreatesPendingJobAndAnnounces(t *testing.T) {
	feed := newFakeFeed()
	svc := newTestService(t, feed)

	id := enqueueTicket(t, svc, "tenant-a")
	job, err := svc.Get(context.Background(), "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPending, job.Status)
	assert.Equal(t, "waiter-1", job.CreatedBy)
	assert.Nil(t, job.PrintedByDevice)
	assert.Nil(t, job.PrintedAt)
	assert.Equal(t, []string{"tq:print_jobs:tenant-a"}, feed.published)
}

func TestEnqueueValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	cases := map[string]EnqueueInput{
		"missing tenant":  {CreatedBy: "u", PrintType: enums.PrintCustomerReceipt},
		"missing creator": {TenantID: "t", PrintType: enums.PrintCustomerReceipt},
		"bad type":        {TenantID: "t", CreatedBy: "u", PrintType: "label"},
		"bad payload":     {TenantID: "t", CreatedBy: "u", PrintType: enums.PrintCustomerReceipt, Payload: []byte("{")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Enqueue(ctx, in)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestPollPendingIsOrderedAndTenantScoped(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	first := enqueueTicket(t, svc, "tenant-a")
	enqueueTicket(t, svc, "tenant-b")
	second := enqueueTicket(t, svc, "tenant-a")
	third := enqueueTicket(t, svc, "tenant-a")

	_, _, err := svc.MarkPrinted(ctx, "tenant-a", second, "till-1")
	require.NoError(t, err)

	jobs, err := svc.PollPending(ctx, "tenant-a", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first, jobs[0].ID)
	assert.Equal(t, third, jobs[1].ID)
	for _, job := range jobs {
		assert.Equal(t, "tenant-a", job.TenantID)
	}

	limited, err := svc.PollPending(ctx, "tenant-a", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMarkPrintedIsConditional(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")

	job, changed, err := svc.MarkPrinted(ctx, "tenant-a", id, "till-1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.PrintJobPrinted, job.Status)
	require.NotNil(t, job.PrintedByDevice)
	assert.Equal(t, "till-1", *job.PrintedByDevice)
	assert.NotNil(t, job.PrintedAt)

	job, changed, err = svc.MarkPrinted(ctx, "tenant-a", id, "till-2")
	require.NoError(t, err, "losing the race is not an error")
	assert.False(t, changed)
	assert.Equal(t, "till-1", *job.PrintedByDevice, "first writer keeps ownership")

	job, changed, err = svc.MarkFailed(ctx, "tenant-a", id, "jam")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, enums.PrintJobPrinted, job.Status, "printed never moves back")
	assert.Nil(t, job.LastError)
}

func TestMarkFailedRecordsReason(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")

	job, changed, err := svc.MarkFailed(ctx, "tenant-a", id, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.PrintJobFailed, job.Status)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "print failed", *job.LastError)
	assert.NotNil(t, job.FailedAt)
	assert.Nil(t, job.PrintedByDevice)

	_, changed, err = svc.MarkPrinted(ctx, "tenant-a", id, "till-1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTransitionsRespectTenant(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := enqueueTicket(t, svc, "tenant-a")

	_, _, err := svc.MarkPrinted(ctx, "tenant-b", id, "till-9")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Get(ctx, "tenant-b", id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	job, err := svc.Get(ctx, "tenant-a", id)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPending, job.Status)

	_, _, err = svc.MarkPrinted(ctx, "tenant-a", uuid.New(), "till-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, _, err = svc.MarkPrinted(ctx, "tenant-a", id, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeleteFinishedBeforeKeepsPending(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	printed := enqueueTicket(t, svc, "tenant-a")
	failed := enqueueTicket(t, svc, "tenant-a")
	pending := enqueueTicket(t, svc, "tenant-a")
	_, _, err := svc.MarkPrinted(ctx, "tenant-a", printed, "till-1")
	require.NoError(t, err)
	_, _, err = svc.MarkFailed(ctx, "tenant-a", failed, "jam")
	require.NoError(t, err)

	removed, err := svc.DeleteFinishedBefore(ctx, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, removed, "nothing is older than the cutoff")

	removed, err = svc.DeleteFinishedBefore(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = svc.Get(ctx, "tenant-a", pending)
	assert.NoError(t, err)
}
