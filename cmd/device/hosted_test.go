package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillq/internal/printqueue"
	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/pkg/config"
	"github.com/angelmondragon/tillq/pkg/db"
	"github.com/angelmondragon/tillq/pkg/db/dbtest"
	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "device-test", Output: io.Discard})
}

func TestHostedStoreFailsSoftWhileOffline(t *testing.T) {
	h := newHostedStore(config.RemoteConfig{Resources: []string{"orders"}, IDColumn: "id"}, testLogger(), nil,
		func(context.Context) (*db.Client, error) { return nil, errors.New("dial tcp: no route") }, time.Millisecond)
	ctx := context.Background()

	err := h.Execute(ctx, models.Operation{Action: enums.ActionCreate, Resource: "orders"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = h.Enqueue(ctx, printqueue.EnqueueInput{TenantID: "tenant-a"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Error(t, h.Ping(ctx))
	assert.Error(t, h.Connect(ctx))

	select {
	case <-h.Ready():
		t.Fatal("store must not report ready")
	default:
	}
}

func TestHostedStoreRetriesUntilConnected(t *testing.T) {
	conn := dbtest.OpenHosted(t)
	var attempts atomic.Int32
	h := newHostedStore(config.RemoteConfig{Resources: []string{"orders"}, IDColumn: "id"}, testLogger(), nil,
		func(context.Context) (*db.Client, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New("connection refused")
			}
			return db.Wrap(conn), nil
		}, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Run(ctx))
	assert.EqualValues(t, 3, attempts.Load())

	select {
	case <-h.Ready():
	default:
		t.Fatal("expected ready after connect")
	}
	require.NotNil(t, h.Jobs())
	require.NoError(t, h.Ping(ctx))

	job, err := h.Enqueue(ctx, printqueue.EnqueueInput{
		TenantID:  "tenant-a",
		CreatedBy: "waiter-1",
		PrintType: enums.PrintKitchenTicket,
		Payload:   json.RawMessage(`{"order":"o-1"}`),
	})
	require.NoError(t, err)
	got, err := h.Get(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PrintJobPending, got.Status)

	// a second connect keeps the first handle
	require.NoError(t, h.Connect(ctx))
	assert.EqualValues(t, 3, attempts.Load())
}

func TestHostedStoreRegistersConfiguredResources(t *testing.T) {
	h := newHostedStore(config.RemoteConfig{Resources: []string{"orders", "tables"}}, testLogger(), nil, nil, 0)
	reg := syncer.NewExecutorRegistry()
	h.Register(reg)

	_, err := reg.Resolve(enums.ActionUpdate, "tables")
	assert.NoError(t, err)
	_, err = reg.Resolve(enums.ActionUpdate, "users")
	assert.Error(t, err)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	assert.Error(t, err)
}

func TestHostedStoreCallsFailFastWhileDialPending(t *testing.T) {
	release := make(chan struct{})
	h := newHostedStore(config.RemoteConfig{Resources: []string{"orders"}, IDColumn: "id"}, testLogger(), nil,
		func(ctx context.Context) (*db.Client, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, errors.New("dial tcp: i/o timeout")
		}, time.Hour)
	t.Cleanup(func() { close(release) })

	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.Run(runCtx) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancelCall := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelCall()
	start := time.Now()
	err := h.Execute(ctx, models.Operation{Action: enums.ActionCreate, Resource: "orders"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	_, err = h.Enqueue(ctx, printqueue.EnqueueInput{TenantID: "tenant-a"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	_, err = h.PollPending(ctx, "tenant-a", 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestHostedStoreConnectIsBoundedByTimeout(t *testing.T) {
	h := newHostedStore(config.RemoteConfig{Resources: []string{"orders"}}, testLogger(), nil,
		func(ctx context.Context) (*db.Client, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, time.Millisecond)
	h.connectTimeout = 50 * time.Millisecond

	start := time.Now()
	err := h.Connect(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
