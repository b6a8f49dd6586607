package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillq/internal/printqueue"
	"github.com/angelmondragon/tillq/internal/remote"
	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/pkg/config"
	"github.com/angelmondragon/tillq/pkg/db"
	"github.com/angelmondragon/tillq/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/redis"
)

const (
	defaultHostedRetry   = 10 * time.Second
	defaultHostedConnect = 15 * time.Second
)

var errHostedOffline = errors.New("hosted store not connected")

type openFunc func(ctx context.Context) (*db.Client, error)

// hostedStore connects to the hosted database in the background so the device
// can boot offline. Until it connects, replays and print-queue calls fail with
// a dependency error and operations stay queued.
type hostedStore struct {
	remoteCfg config.RemoteConfig
	logg      *logger.Logger
	feed      redis.PubSub
	open      openFunc
	retry     time.Duration

	connectTimeout time.Duration
	connMu         sync.Mutex

	mu     sync.RWMutex
	client *db.Client
	exec   *remote.GormExecutor
	jobs   *printqueue.Service
	ready  chan struct{}
}

func newHostedStore(remoteCfg config.RemoteConfig, logg *logger.Logger, feed redis.PubSub, open openFunc, retry time.Duration) *hostedStore {
	if retry <= 0 {
		retry = defaultHostedRetry
	}
	return &hostedStore{
		remoteCfg: remoteCfg,
		logg:      logg,
		feed:      feed,
		open:      open,
		retry:     retry,
		ready:     make(chan struct{}),

		connectTimeout: defaultHostedConnect,
	}
}

// Connect opens the hosted store once. Later calls are no-ops. The dial runs
// outside mu so replays and print calls keep failing fast while it is pending.
func (h *hostedStore) Connect(ctx context.Context) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.connected() {
		return nil
	}

	openCtx, cancel := context.WithTimeout(ctx, h.connectTimeout)
	defer cancel()
	client, err := h.open(openCtx)
	if err != nil {
		return err
	}
	exec, err := remote.NewGormExecutor(client.DB(), h.remoteCfg)
	if err != nil {
		_ = client.Close()
		return err
	}
	params := printqueue.ServiceParams{
		Repository: printqueue.NewRepository(client.DB()),
		Logger:     h.logg,
	}
	if h.feed != nil {
		params.Feed = h.feed
	}
	jobs, err := printqueue.NewService(params)
	if err != nil {
		_ = client.Close()
		return err
	}

	h.mu.Lock()
	h.client, h.exec, h.jobs = client, exec, jobs
	h.mu.Unlock()
	close(h.ready)
	return nil
}

func (h *hostedStore) connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client != nil
}

// Run retries Connect until it succeeds or ctx ends.
func (h *hostedStore) Run(ctx context.Context) error {
	for {
		err := h.Connect(ctx)
		if err == nil {
			h.logg.Info(ctx, "hosted store connected")
			return nil
		}
		h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "hosted store unavailable; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.retry):
		}
	}
}

func (h *hostedStore) Ready() <-chan struct{} { return h.ready }

func (h *hostedStore) Jobs() *printqueue.Service {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.jobs
}

// Register binds every replayable resource to the hosted store.
func (h *hostedStore) Register(reg *syncer.ExecutorRegistry) {
	for _, resource := range h.remoteCfg.Resources {
		reg.RegisterAll(resource, h)
	}
}

func (h *hostedStore) Execute(ctx context.Context, op models.Operation) error {
	h.mu.RLock()
	exec := h.exec
	h.mu.RUnlock()
	if exec == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errHostedOffline, "replay operation")
	}
	return exec.Execute(ctx, op)
}

func (h *hostedStore) Enqueue(ctx context.Context, in printqueue.EnqueueInput) (*models.PrintJob, error) {
	jobs := h.Jobs()
	if jobs == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errHostedOffline, "enqueue print job")
	}
	return jobs.Enqueue(ctx, in)
}

func (h *hostedStore) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.PrintJob, error) {
	jobs := h.Jobs()
	if jobs == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errHostedOffline, "load print job")
	}
	return jobs.Get(ctx, tenantID, id)
}

func (h *hostedStore) PollPending(ctx context.Context, tenantID string, limit int) ([]models.PrintJob, error) {
	jobs := h.Jobs()
	if jobs == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errHostedOffline, "list print jobs")
	}
	return jobs.PollPending(ctx, tenantID, limit)
}

func (h *hostedStore) Ping(ctx context.Context) error {
	h.mu.RLock()
	client := h.client
	h.mu.RUnlock()
	if client == nil {
		return errHostedOffline
	}
	return client.Ping(ctx)
}

func (h *hostedStore) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}
