package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
	registry := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	if err := service.RunOnce(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "print-job-retention"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
}

func TestServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})}); err == nil {
		t.Fatal("expected lock error")
	}
}

type cadenceJob struct {
	testJob
	every time.Duration
}

func (c *cadenceJob) Interval() time.Duration { return c.every }

func TestServiceRunsIntervalJobsOnlyWhenDue(t *testing.T) {
	plain := &testJob{name: "plain"}
	hourly := &cadenceJob{testJob: testJob{name: "hourly"}, every: time.Hour}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(plain, hourly),
		Lock:     &fakeLock{},
		Interval: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if service.Interval() != time.Hour {
		t.Fatalf("expected tick to shrink to the hourly job, got %v", service.Interval())
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }
	ctx := context.Background()

	if err := service.RunOnce(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	now = now.Add(10 * time.Minute)
	if err := service.RunOnce(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if plain.runs != 2 || hourly.runs != 1 {
		t.Fatalf("expected plain=2 hourly=1, got plain=%d hourly=%d", plain.runs, hourly.runs)
	}

	now = now.Add(time.Hour)
	if err := service.RunOnce(ctx); err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	if hourly.runs != 2 {
		t.Fatalf("expected hourly job to run again, ran %d", hourly.runs)
	}
}
