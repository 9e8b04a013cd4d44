package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/autoerr"
	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/queue"
	"github.com/shopchat/autoreply-backend/internal/repos"
	"github.com/shopchat/autoreply-backend/internal/types"
)

const (
	DefaultGroupWindow  = 30 * time.Second
	DefaultMutexBackoff = 500 * time.Millisecond
)

// HandleOutcome reports what one pipeline run did with an event.
type HandleOutcome string

const (
	OutcomeSent            HandleOutcome = "sent"
	OutcomeSkippedDisabled HandleOutcome = "skipped_disabled"
	OutcomeSkippedGated    HandleOutcome = "skipped_gated"
	OutcomeSkippedClaimed  HandleOutcome = "skipped_claimed"
	OutcomeSkippedEmpty    HandleOutcome = "skipped_empty"
	OutcomeFailed          HandleOutcome = "failed"
)

// GroupDispatcher is the send-side of the pipeline; Dispatcher implements
// it, tests substitute delayed or failing fakes.
type GroupDispatcher interface {
	Dispatch(ctx context.Context, tenant *types.Tenant, ev queue.AutoResponseEvent, groupIDs []string, text string) (string, error)
}

type AutoResponseConfig struct {
	GroupWindow  time.Duration
	MutexBackoff time.Duration
}

// AutoResponseService runs the per-event pipeline: gate check, processing
// mutex, dedup claim, grouping, composition, dispatch, gate set. Every
// step is safe to attempt redundantly; the claim-before-send ordering in
// handleGroup is what makes concurrent invocations converge on a single
// dispatch.
type AutoResponseService struct {
	db          *gorm.DB
	log         *logger.Logger
	tenantRepo  repos.TenantRepo
	messageRepo repos.MessageRepo
	dedup       *DedupCache
	mutex       *ProcessingMutex
	gate        *ConversationGate
	dispatcher  GroupDispatcher
	cfg         AutoResponseConfig

	// injected for tests
	now   func() time.Time
	sleep func(time.Duration)
}

func NewAutoResponseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	tenantRepo repos.TenantRepo,
	messageRepo repos.MessageRepo,
	dedup *DedupCache,
	mutex *ProcessingMutex,
	gate *ConversationGate,
	dispatcher GroupDispatcher,
	cfg AutoResponseConfig,
) *AutoResponseService {
	if cfg.GroupWindow <= 0 {
		cfg.GroupWindow = DefaultGroupWindow
	}
	if cfg.MutexBackoff <= 0 {
		cfg.MutexBackoff = DefaultMutexBackoff
	}
	return &AutoResponseService{
		db:          db,
		log:         baseLog.With("service", "AutoResponseService"),
		tenantRepo:  tenantRepo,
		messageRepo: messageRepo,
		dedup:       dedup,
		mutex:       mutex,
		gate:        gate,
		dispatcher:  dispatcher,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       time.Sleep,
	}
}

// HandleEvent is the single entry point used by the webhook consumer and
// the sweep alike.
func (s *AutoResponseService) HandleEvent(ctx context.Context, ev queue.AutoResponseEvent) (HandleOutcome, error) {
	log := s.log.With("tenant_id", ev.TenantID, "sender", ev.Sender, "message_id", ev.MessageID)

	tenant, err := s.tenantRepo.GetByID(ctx, nil, ev.TenantID)
	if err != nil {
		log.Error("Tenant lookup failed", "error", err)
		return OutcomeFailed, err
	}
	if !tenant.AutoResponseEnabled {
		return OutcomeSkippedDisabled, nil
	}

	if s.isGated(ctx, log, ev) {
		return OutcomeSkippedGated, nil
	}

	// Fast path: a concurrent handler already owns this message.
	if claimed, err := s.dedup.IsClaimed(ctx, ev.TenantID, ev.MessageID); err != nil {
		s.logStoreFailure(log, "dedup check", err)
	} else if claimed {
		return OutcomeSkippedClaimed, nil
	}

	acquired, err := s.mutex.Acquire(ctx, ev.TenantID, ev.Sender)
	if err != nil {
		s.logStoreFailure(log, "mutex acquire", err)
		acquired = true
	}
	if !acquired {
		// Give the lock holder one backoff worth of time to claim, then
		// re-check. If the message is still unclaimed we proceed anyway:
		// a rare duplicate beats a stalled sender.
		s.sleep(s.cfg.MutexBackoff)
		if claimed, err := s.dedup.IsClaimed(ctx, ev.TenantID, ev.MessageID); err != nil {
			s.logStoreFailure(log, "dedup re-check", err)
		} else if claimed {
			return OutcomeSkippedClaimed, nil
		}
		log.Warn("Proceeding without processing mutex, message still unclaimed after backoff")
	}

	return s.handleGroup(ctx, log, tenant, ev)
}

func (s *AutoResponseService) handleGroup(ctx context.Context, log *logger.Logger, tenant *types.Tenant, ev queue.AutoResponseEvent) (HandleOutcome, error) {
	// The window anchors on the event's own receipt time, not on the wall
	// clock. Replayed events (sweep poll, post-cool-down retries) arrive
	// long after their messages and still have to find their burst.
	anchor := ev.Timestamp
	if anchor.IsZero() {
		anchor = s.now()
	}
	since := anchor.Add(-s.cfg.GroupWindow)
	burst, err := s.messageRepo.ListRecentInbound(ctx, nil, ev.TenantID, ev.Sender, since)
	if err != nil {
		log.Error("Grouping query failed", "error", err)
		return OutcomeFailed, err
	}
	if len(burst) == 0 {
		return OutcomeSkippedEmpty, nil
	}

	candidateIDs := make([]string, 0, len(burst))
	for _, msg := range burst {
		candidateIDs = append(candidateIDs, msg.PlatformMessageID)
	}

	unclaimed, err := s.dedup.FilterUnclaimed(ctx, ev.TenantID, candidateIDs)
	if err != nil {
		s.logStoreFailure(log, "claim filter", err)
		unclaimed = candidateIDs
	}
	if len(unclaimed) == 0 {
		return OutcomeSkippedClaimed, nil
	}

	// Claim before send. From here on, every concurrent handler that
	// checks the cache sees these ids as taken.
	owned, err := s.dedup.ClaimAll(ctx, ev.TenantID, unclaimed)
	if err != nil {
		s.logStoreFailure(log, "claim write", err)
		owned = unclaimed
	}
	if len(owned) == 0 {
		return OutcomeSkippedClaimed, nil
	}

	// Last look at the gate before the send. Claims made above are
	// harmless if we abort here; they only stop reprocessing.
	if s.isGated(ctx, log, ev) {
		return OutcomeSkippedGated, nil
	}

	ownedSet := make(map[string]bool, len(owned))
	for _, id := range owned {
		ownedSet[id] = true
	}
	group := make([]*types.Message, 0, len(owned))
	for _, msg := range burst {
		if ownedSet[msg.PlatformMessageID] {
			group = append(group, msg)
		}
	}

	text := ComposeGreeting(tenant, group, s.now())
	responseID, err := s.dispatcher.Dispatch(ctx, tenant, ev, owned, text)
	if err != nil && responseID == "" {
		log.Warn("Dispatch failed", "group_size", len(owned), "error", err)
		return OutcomeFailed, err
	}
	if err != nil {
		// The greeting reached the customer and only the log update
		// failed. The gate still has to close, otherwise the next inbound
		// message greets the sender a second time.
		log.Warn("Greeting delivered but message log update failed", "response_id", responseID, "error", err)
	}

	if gerr := s.gate.Set(ctx, ev.TenantID, ev.Sender); gerr != nil {
		s.logStoreFailure(log, "gate set", gerr)
	}
	log.Info("Auto-response sent", "response_id", responseID, "group_size", len(group))
	return OutcomeSent, nil
}

func (s *AutoResponseService) isGated(ctx context.Context, log *logger.Logger, ev queue.AutoResponseEvent) bool {
	gated, err := s.gate.Has(ctx, ev.TenantID, ev.Sender)
	if err != nil {
		s.logStoreFailure(log, "gate check", err)
		return false
	}
	return gated
}

// logStoreFailure is the single place degraded coordination is reported.
// The pipeline fails open on these: a coordination outage must not turn
// into a total auto-response outage, so the caller continues and accepts
// the small duplicate-send risk.
func (s *AutoResponseService) logStoreFailure(log *logger.Logger, op string, err error) {
	if autoerr.IsStoreUnavailable(err) {
		log.Warn("Coordination store unavailable, failing open", "op", op, "error", err)
		return
	}
	log.Warn("Coordination call failed, failing open", "op", op, "error", err)
}
