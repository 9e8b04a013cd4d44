package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/queue"
	"github.com/shopchat/autoreply-backend/internal/repos"
)

const (
	DefaultSweepInterval    = 1 * time.Minute
	DefaultSweepBatchSize   = 50
	DefaultSweepConcurrency = 8
	DefaultFailureCooldown  = 1 * time.Hour
)

// EventHandler is the pipeline entry point the sweep feeds; satisfied by
// AutoResponseService.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev queue.AutoResponseEvent) (HandleOutcome, error)
}

// SweepResult is the attempted/succeeded/failed summary both entry points
// return for observability.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type SweepConfig struct {
	Interval        time.Duration
	BatchSize       int
	Concurrency     int
	FailureCooldown time.Duration
}

// SweepService reconciles the push queue with the message-log fallback
// query. Both sources run through the same per-event pipeline; the queue
// batch dispatches before the poll runs, and any overlap that still slips
// through is absorbed by the dedup layer.
type SweepService struct {
	db          *gorm.DB
	log         *logger.Logger
	events      *queue.EventQueue
	messageRepo repos.MessageRepo
	failureRepo repos.ResponseFailureRepo
	handler     EventHandler
	cfg         SweepConfig

	now func() time.Time
}

func NewSweepService(
	db *gorm.DB,
	baseLog *logger.Logger,
	events *queue.EventQueue,
	messageRepo repos.MessageRepo,
	failureRepo repos.ResponseFailureRepo,
	handler EventHandler,
	cfg SweepConfig,
) *SweepService {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSweepConcurrency
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = DefaultFailureCooldown
	}
	return &SweepService{
		db:          db,
		log:         baseLog.With("service", "SweepService"),
		events:      events,
		messageRepo: messageRepo,
		failureRepo: failureRepo,
		handler:     handler,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunSweep drains one batch from both sources, dispatches events with
// bounded concurrency and per-event isolation, then does log housekeeping.
func (s *SweepService) RunSweep(ctx context.Context, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	pushed, err := s.events.PopPending(ctx, batchSize)
	if err != nil {
		// Keep whatever parsed before the failure; the rest stays queued.
		s.log.Warn("Push-queue drain incomplete", "drained", len(pushed), "error", err)
	}
	result := s.dispatchBatch(ctx, pushed)

	// The queue batch runs to completion before the poll so messages it
	// marks responded drop out of the fallback query instead of being
	// attempted twice in one cycle.
	polled, err := s.pollFallback(ctx, batchSize)
	if err != nil {
		s.log.Warn("Poll-fallback query failed", "error", err)
	}
	pollResult := s.dispatchBatch(ctx, polled)
	result.Attempted += pollResult.Attempted
	result.Succeeded += pollResult.Succeeded
	result.Failed += pollResult.Failed

	s.housekeep(ctx)

	s.log.Info("Sweep complete", "attempted", result.Attempted, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

func (s *SweepService) pollFallback(ctx context.Context, limit int) ([]queue.AutoResponseEvent, error) {
	cooldownSince := s.now().Add(-s.cfg.FailureCooldown)
	exclude, err := s.failureRepo.RecentFailedSenders(ctx, nil, cooldownSince)
	if err != nil {
		s.log.Warn("Cool-down exclusion query failed, polling without it", "error", err)
		exclude = nil
	}

	pending, err := s.messageRepo.ListUnresponded(ctx, nil, limit, exclude)
	if err != nil {
		return nil, err
	}

	events := make([]queue.AutoResponseEvent, 0, len(pending))
	for _, msg := range pending {
		events = append(events, queue.AutoResponseEvent{
			MessageID: msg.PlatformMessageID,
			TenantID:  msg.TenantID,
			Sender:    msg.Sender,
			Timestamp: msg.ReceivedAt,
		})
	}
	return events, nil
}

func (s *SweepService) dispatchBatch(ctx context.Context, batch []queue.AutoResponseEvent) SweepResult {
	var (
		mu     sync.Mutex
		result = SweepResult{Attempted: len(batch)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, ev := range batch {
		ev := ev
		g.Go(func() error {
			// One failing event must not abort the batch, so errors stop
			// here and only move the counters.
			outcome, err := s.handler.HandleEvent(gctx, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || outcome == OutcomeFailed {
				result.Failed++
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// housekeep resets stale failed rows back to unset so they become visible
// to the next poll. Dedup claims need no sweep of their own, the store TTL
// retires them.
func (s *SweepService) housekeep(ctx context.Context) {
	olderThan := s.now().Add(-s.cfg.FailureCooldown)
	reset, err := s.messageRepo.ResetStaleFailures(ctx, nil, olderThan)
	if err != nil {
		s.log.Warn("Housekeeping reset failed", "error", err)
		return
	}
	if reset > 0 {
		s.log.Info("Housekeeping reset stale failed messages", "count", reset)
	}
}

// Start runs the sweep on a fixed interval until ctx is cancelled.
func (s *SweepService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunSweep(ctx, s.cfg.BatchSize); err != nil {
					s.log.Warn("Scheduled sweep failed", "error", err)
				}
			}
		}
	}()
}
