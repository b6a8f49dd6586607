package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/tillq/internal/connectivity"
	"github.com/angelmondragon/tillq/internal/printing"
	"github.com/angelmondragon/tillq/internal/printqueue"
	"github.com/angelmondragon/tillq/internal/worker"
	"github.com/angelmondragon/tillq/pkg/logger"
)

const consumerCheckInterval = 5 * time.Second

type routingLoader interface {
	Load(ctx context.Context) (printing.PrintRoutingConfig, error)
}

type consumerFactory func(jobs *printqueue.Service) (*printqueue.Consumer, error)

type ServiceParams struct {
	Logger      *logger.Logger
	Server      *http.Server
	Runtime     *worker.Runtime
	Source      *connectivity.InterfaceSource
	Hosted      *hostedStore
	Settings    routingLoader
	NewConsumer consumerFactory
	Local       interface{ Ping(context.Context) error }
}

// Service runs every long-lived part of the device daemon and stops them all
// when one fails or ctx ends.
type Service struct {
	logg        *logger.Logger
	server      *http.Server
	runtime     *worker.Runtime
	source      *connectivity.InterfaceSource
	hosted      *hostedStore
	settings    routingLoader
	newConsumer consumerFactory
	local       interface{ Ping(context.Context) error }
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Server == nil {
		return nil, errors.New("http server is required")
	}
	if params.Runtime == nil {
		return nil, errors.New("worker runtime is required")
	}
	if params.Hosted == nil {
		return nil, errors.New("hosted store is required")
	}
	if params.Settings == nil {
		return nil, errors.New("print settings are required")
	}
	if params.NewConsumer == nil {
		return nil, errors.New("print consumer factory is required")
	}
	if params.Local == nil {
		return nil, errors.New("local store is required")
	}
	return &Service{
		logg:        params.Logger,
		server:      params.Server,
		runtime:     params.Runtime,
		source:      params.Source,
		hosted:      params.Hosted,
		settings:    params.Settings,
		newConsumer: params.NewConsumer,
		local:       params.Local,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "local store", s.local.Ping); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 5)
	go func() { errCh <- s.runtime.Start(ctx) }()
	go func() { errCh <- s.hosted.Run(ctx) }()
	go func() { errCh <- s.superviseConsumer(ctx) }()
	if s.source != nil {
		go func() { errCh <- s.source.Run(ctx) }()
	}
	go func() {
		s.logg.Info(s.logg.WithField(ctx, "addr", s.server.Addr), "local api listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("local api: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return runErr
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "device component stopped", err)
				runErr = err
				cancel()
			}
		}
	}
}

func (s *Service) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logg.Error(shutdownCtx, "local api shutdown failed", err)
	}
}

// superviseConsumer runs the print-queue consumer only while this device is the
// print server, re-reading the flag so a settings change takes effect.
func (s *Service) superviseConsumer(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.hosted.Ready():
	}

	consumer, err := s.newConsumer(s.hosted.Jobs())
	if err != nil {
		return fmt.Errorf("build print consumer: %w", err)
	}

	var stop context.CancelFunc
	check := func() {
		cfg, err := s.settings.Load(ctx)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "reading print settings failed")
			return
		}
		switch {
		case cfg.IsPrintServer && stop == nil:
			var consumerCtx context.Context
			consumerCtx, stop = context.WithCancel(ctx)
			go func() {
				if err := consumer.Run(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
					s.logg.Error(ctx, "print consumer stopped", err)
				}
			}()
			s.logg.Info(ctx, "print consumer started")
		case !cfg.IsPrintServer && stop != nil:
			stop()
			stop = nil
			s.logg.Info(ctx, "print consumer stopped; device is no longer the print server")
		}
	}

	check()
	ticker := time.NewTicker(consumerCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if stop != nil {
				stop()
			}
			return nil
		case <-ticker.C:
			check()
		}
	}
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}
