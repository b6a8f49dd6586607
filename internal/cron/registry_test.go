package cron

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/tillq/internal/worker"
)

type stubJob struct {
	name     string
	interval time.Duration
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

type intervalStubJob struct {
	stubJob
}

func (s *intervalStubJob) Interval() time.Duration { return s.interval }

type recordingScheduler struct {
	intervals map[string]time.Duration
}

func (r *recordingScheduler) RunPeriodically(name string, interval time.Duration, _ worker.JobFunc) error {
	if r.intervals == nil {
		r.intervals = map[string]time.Duration{}
	}
	r.intervals[name] = interval
	return nil
}

func (r *recordingScheduler) OnConnectivityChange(worker.ConnectivityHandler) {}

func (r *recordingScheduler) PostMessage(context.Context, worker.Message) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry(nil)
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA)
	registry.Register(jobB)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistrySchedulePrefersJobInterval(t *testing.T) {
	registry := NewRegistry(
		&stubJob{name: "plain"},
		&intervalStubJob{stubJob{name: "custom", interval: time.Minute}},
	)
	sched := &recordingScheduler{}
	if err := registry.Schedule(sched, time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := sched.intervals["plain"]; got != time.Hour {
		t.Fatalf("expected fallback interval, got %v", got)
	}
	if got := sched.intervals["custom"]; got != time.Minute {
		t.Fatalf("expected job interval, got %v", got)
	}
}
