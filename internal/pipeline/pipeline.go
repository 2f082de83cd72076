package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tansinh/switchboard/internal/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LockStore is the lease primitive guarding at-most-one concurrent run.
type LockStore interface {
	TryAcquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holderID string) error
	ClearExpired(ctx context.Context, name string) (int64, error)
}

// WorkItemStore is the recording work-item persistence.
type WorkItemStore interface {
	ResetStuck(ctx context.Context, olderThan time.Time) (int64, error)
	FindEligible(ctx context.Context, maxRetries, limit int) ([]model.WorkItem, error)
	MarkProcessing(ctx context.Context, id primitive.ObjectID) error
	MarkCompleted(ctx context.Context, id primitive.ObjectID, durableURL string) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, retryCount int) error
}

// ObjectStore archives recording bytes durably and returns the public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Config carries the pipeline's fixed operating bounds.
type Config struct {
	LockName       string
	LockTTL        time.Duration
	BatchSize      int
	MaxRetries     int
	StuckThreshold time.Duration
	Download       RetryPolicy
}

// DefaultConfig returns the production bounds: a 15 minute lock, batches of
// five, three retries per item, 20 minute stuck threshold, and two download
// attempts of up to 12 minutes each with a 5 second pause between them.
func DefaultConfig() Config {
	return Config{
		LockName:       "recording_upload",
		LockTTL:        15 * time.Minute,
		BatchSize:      5,
		MaxRetries:     3,
		StuckThreshold: 20 * time.Minute,
		Download: RetryPolicy{
			MaxAttempts:    2,
			Delay:          5 * time.Second,
			AttemptTimeout: 12 * time.Minute,
		},
	}
}

// Summary reports the outcome of one pipeline trigger.
type Summary struct {
	Success         bool   `json:"success"`
	InstanceID      string `json:"instance_id"`
	RanThisInstance bool   `json:"ran_this_instance"`
	Attempted       int    `json:"attempted"`
	Succeeded       int    `json:"succeeded"`
	Failed          int    `json:"failed"`
	Message         string `json:"message,omitempty"`
}

// Runner executes the recording ingestion pipeline: find pending work items,
// fetch source media, archive it, update item state. A run happens only while
// holding the job lock, so any number of overlapping triggers collapse to one
// execution.
type Runner struct {
	cfg     Config
	locks   LockStore
	items   WorkItemStore
	fetcher MediaFetcher
	store   ObjectStore

	now func() time.Time
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg Config, locks LockStore, items WorkItemStore, fetcher MediaFetcher, store ObjectStore) *Runner {
	return &Runner{
		cfg:     cfg,
		locks:   locks,
		items:   items,
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
	}
}

// Run executes one pipeline pass. A failed lock acquisition is a normal
// outcome (another instance is already running); the lock is released in a
// cleanup step that runs no matter how the pass terminated.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	instanceID := "instance_" + uuid.New().String()
	sum := Summary{InstanceID: instanceID}

	// Best-effort cleanup so the lock row reads correctly after a crash.
	// Not required for correctness: TryAcquire re-checks expiry itself.
	if cleared, err := r.locks.ClearExpired(ctx, r.cfg.LockName); err != nil {
		slog.Warn("Failed to clear expired lock", "error", err)
	} else if cleared > 0 {
		slog.Info("Cleared expired pipeline lock", "lock_name", r.cfg.LockName)
	}

	acquired, err := r.locks.TryAcquire(ctx, r.cfg.LockName, instanceID, r.cfg.LockTTL)
	if err != nil {
		sum.Message = "lock acquisition failed"
		return sum, err
	}
	if !acquired {
		slog.Info("Another instance holds the pipeline lock, skipping",
			"instance_id", instanceID,
		)
		sum.Success = true
		sum.Message = "another instance is already running"
		return sum, nil
	}

	sum.RanThisInstance = true
	slog.Info("Pipeline lock acquired", "instance_id", instanceID)

	defer func() {
		// Release with a fresh context so a cancelled run still unblocks
		// the next trigger without waiting out the lock TTL.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.locks.Release(releaseCtx, r.cfg.LockName, instanceID); err != nil {
			slog.Error("Failed to release pipeline lock",
				"instance_id", instanceID,
				"error", err,
			)
		}
	}()

	if err := r.process(ctx, &sum); err != nil {
		sum.Message = err.Error()
		return sum, err
	}

	sum.Success = true
	sum.Message = fmt.Sprintf("processed %d items: %d succeeded, %d failed",
		sum.Attempted, sum.Succeeded, sum.Failed)
	return sum, nil
}

func (r *Runner) process(ctx context.Context, sum *Summary) error {
	// Heal items a crashed worker left permanently in processing.
	stuckBefore := r.now().Add(-r.cfg.StuckThreshold)
	if reset, err := r.items.ResetStuck(ctx, stuckBefore); err != nil {
		slog.Warn("Failed to reset stuck work items", "error", err)
	} else if reset > 0 {
		slog.Info("Reset stuck work items", "count", reset)
	}

	batch, err := r.items.FindEligible(ctx, r.cfg.MaxRetries, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending work items: %w", err)
	}
	if len(batch) == 0 {
		slog.Info("No pending recordings to process")
		return nil
	}

	// Sequential on purpose: one slow upstream download at a time bounds
	// memory and connections within a single run.
	for _, item := range batch {
		sum.Attempted++
		if err := r.processItem(ctx, item); err != nil {
			sum.Failed++
			slog.Error("Work item failed",
				"item_id", item.ID.Hex(),
				"phone_number", item.PhoneNumber,
				"retry_count", item.RetryCount+1,
				"error", err,
			)
			continue
		}
		sum.Succeeded++
	}

	return nil
}

// processItem moves one recording from the upstream source into durable
// storage. Failures are terminal for this item only: status goes to failed
// and the retry count advances.
func (r *Runner) processItem(ctx context.Context, item model.WorkItem) error {
	slog.Info("Processing recording",
		"item_id", item.ID.Hex(),
		"phone_number", item.PhoneNumber,
		"retry_count", item.RetryCount,
	)

	if err := r.items.MarkProcessing(ctx, item.ID); err != nil {
		slog.Warn("Failed to mark work item processing",
			"item_id", item.ID.Hex(),
			"error", err,
		)
	}

	var body []byte
	start := r.now()
	err := r.cfg.Download.Do(ctx, func(attemptCtx context.Context) error {
		b, err := r.fetcher.Fetch(attemptCtx, item.SourceURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return r.fail(ctx, item, fmt.Errorf("download failed: %w", err))
	}

	slog.Info("Recording downloaded",
		"item_id", item.ID.Hex(),
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	key := objectKey(item.PhoneNumber, r.now())
	durableURL, err := r.store.Put(ctx, key, body, "audio/mpeg")
	if err != nil {
		return r.fail(ctx, item, fmt.Errorf("archive upload failed: %w", err))
	}

	if err := r.items.MarkCompleted(ctx, item.ID, durableURL); err != nil {
		return r.fail(ctx, item, fmt.Errorf("failed to record completion: %w", err))
	}

	slog.Info("Recording archived",
		"item_id", item.ID.Hex(),
		"durable_url", durableURL,
	)
	return nil
}

func (r *Runner) fail(ctx context.Context, item model.WorkItem, cause error) error {
	if err := r.items.MarkFailed(ctx, item.ID, item.RetryCount+1); err != nil {
		slog.Error("Failed to mark work item failed",
			"item_id", item.ID.Hex(),
			"error", err,
		)
	}
	return cause
}

// objectKey builds the storage key for a recording: digits of the phone
// number plus a millisecond timestamp.
func objectKey(phoneNumber string, now time.Time) string {
	var digits strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if cleaned == "" {
		cleaned = "unknown"
	}
	return fmt.Sprintf("%s_%d.mp3", cleaned, now.UnixMilli())
}
