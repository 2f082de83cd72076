package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/tansinh/switchboard/internal/pipeline"
)

// PipelineRunner triggers one pipeline pass.
type PipelineRunner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// Scheduler triggers the recording ingestion pipeline on a cron schedule.
// Multiple instances may all fire on the same tick; the pipeline's job lock
// collapses them to one actual run, so the scheduler stays dumb on purpose.
type Scheduler struct {
	runner   PipelineRunner
	schedule cron.Schedule
	enabled  bool
	podID    string
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler from a standard five-field cron spec.
func New(runner PipelineRunner, cronSpec string, enabled bool) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cronSpec)
	if err != nil {
		return nil, err
	}

	podID, err := os.Hostname()
	if err != nil {
		podID = uuid.New().String()
		slog.Warn("Failed to get hostname, using UUID as pod ID", "pod_id", podID)
	}

	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		enabled:  enabled,
		podID:    podID,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop
func (s *Scheduler) Start(ctx context.Context) {
	if !s.enabled {
		slog.Info("Scheduler is disabled by configuration")
		return
	}

	slog.Info("Starting scheduler",
		"pod_id", s.podID,
		"next_run", s.schedule.Next(time.Now().UTC()).Format(time.RFC3339),
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the scheduler, waiting out any in-flight run up to
// the context deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	if !s.enabled {
		return
	}

	slog.Info("Stopping scheduler", "pod_id", s.podID)
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Scheduler stopped", "pod_id", s.podID)
	case <-ctx.Done():
		slog.Warn("Timeout waiting for scheduled run to complete", "pod_id", s.podID)
	}
}

// run is the main scheduling loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		next := s.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			s.trigger(ctx)
		case <-s.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Scheduler context done", "pod_id", s.podID)
			return
		}
	}
}

// trigger fires one pipeline pass.
func (s *Scheduler) trigger(ctx context.Context) {
	slog.Info("Scheduled pipeline trigger", "pod_id", s.podID)

	start := time.Now()
	summary, err := s.runner.Run(ctx)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Scheduled pipeline run failed",
			"pod_id", s.podID,
			"instance_id", summary.InstanceID,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}

	slog.Info("Scheduled pipeline run completed",
		"pod_id", s.podID,
		"instance_id", summary.InstanceID,
		"ran", summary.RanThisInstance,
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration_ms", duration.Milliseconds(),
	)
}
