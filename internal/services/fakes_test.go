package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/queue"
	"github.com/shopchat/autoreply-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// fakeCoordinator is an in-memory coordination store with TTL support
// driven by an injectable clock. Setting fail simulates a store outage.
type fakeEntry struct {
	value     string
	expiresAt time.Time
}

type fakeCoordinator struct {
	mu      sync.Mutex
	nowFn   func() time.Time
	entries map[string]fakeEntry
	lists   map[string][]string
	fail    bool
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		nowFn:   func() time.Time { return time.Now().UTC() },
		entries: make(map[string]fakeEntry),
		lists:   make(map[string][]string),
	}
}

func (f *fakeCoordinator) gcLocked(key string) {
	entry, ok := f.entries[key]
	if !ok {
		return
	}
	if !entry.expiresAt.IsZero() && !f.nowFn().Before(entry.expiresAt) {
		delete(f.entries, key)
	}
}

func (f *fakeCoordinator) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errors.New("store down")
	}
	f.gcLocked(key)
	if _, ok := f.entries[key]; ok {
		return false, nil
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = f.nowFn().Add(ttl)
	}
	f.entries[key] = fakeEntry{value: value, expiresAt: expiresAt}
	return true, nil
}

func (f *fakeCoordinator) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", false, errors.New("store down")
	}
	f.gcLocked(key)
	entry, ok := f.entries[key]
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (f *fakeCoordinator) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Get(ctx, key)
	return ok, err
}

func (f *fakeCoordinator) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	for _, key := range keys {
		delete(f.entries, key)
	}
	return nil
}

func (f *fakeCoordinator) PushList(ctx context.Context, key string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func (f *fakeCoordinator) PopList(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", false, errors.New("store down")
	}
	list := f.lists[key]
	if len(list) == 0 {
		return "", false, nil
	}
	head := list[0]
	f.lists[key] = list[1:]
	return head, true, nil
}

func (f *fakeCoordinator) TrimList(ctx context.Context, key string, maxLen int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	list := f.lists[key]
	if int64(len(list)) > maxLen {
		f.lists[key] = list[int64(len(list))-maxLen:]
	}
	return nil
}

func (f *fakeCoordinator) Close() error { return nil }

func (f *fakeCoordinator) listLen(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists[key])
}

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*types.Tenant
}

func newFakeTenantRepo(tenants ...*types.Tenant) *fakeTenantRepo {
	repo := &fakeTenantRepo{tenants: make(map[uuid.UUID]*types.Tenant)}
	for _, t := range tenants {
		repo.tenants[t.ID] = t
	}
	return repo
}

func (f *fakeTenantRepo) Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tenants {
		f.tenants[t.ID] = t
	}
	return tenants, nil
}

func (f *fakeTenantRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID) (*types.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tenant, ok := f.tenants[tenantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tenant, nil
}

type fakeMessageRepo struct {
	mu               sync.Mutex
	messages         []*types.Message
	markRespondedErr error
}

func (f *fakeMessageRepo) Create(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range messages {
		for _, existing := range f.messages {
			if existing.PlatformMessageID == msg.PlatformMessageID {
				return nil, errors.New("duplicate platform_message_id")
			}
		}
		f.messages = append(f.messages, msg)
	}
	return messages, nil
}

func (f *fakeMessageRepo) GetByPlatformID(ctx context.Context, tx *gorm.DB, platformID string) (*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.PlatformMessageID == platformID {
			return msg, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMessageRepo) ListRecentInbound(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, sender string, since time.Time) ([]*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []*types.Message
	for _, msg := range f.messages {
		if msg.TenantID == tenantID && msg.Sender == sender &&
			msg.Direction == types.DirectionInbound && !msg.ReceivedAt.Before(since) {
			results = append(results, msg)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ReceivedAt.Before(results[j].ReceivedAt)
	})
	return results, nil
}

func (f *fakeMessageRepo) ListUnresponded(ctx context.Context, tx *gorm.DB, limit int, excludeSenders []string) ([]*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[string]bool, len(excludeSenders))
	for _, s := range excludeSenders {
		excluded[s] = true
	}
	var results []*types.Message
	for _, msg := range f.messages {
		if msg.Direction != types.DirectionInbound || msg.AutoResponseSent != nil || excluded[msg.Sender] {
			continue
		}
		results = append(results, msg)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (f *fakeMessageRepo) MarkResponded(ctx context.Context, tx *gorm.DB, platformIDs []string, responseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markRespondedErr != nil {
		// All-or-nothing: no row is touched when the batch fails.
		return f.markRespondedErr
	}
	ids := make(map[string]bool, len(platformIDs))
	for _, id := range platformIDs {
		ids[id] = true
	}
	now := time.Now().UTC()
	sent := true
	for _, msg := range f.messages {
		if ids[msg.PlatformMessageID] {
			v := sent
			rid := responseID
			msg.AutoResponseSent = &v
			msg.ResponseID = &rid
			msg.RespondedAt = &now
			msg.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeMessageRepo) MarkFailed(ctx context.Context, tx *gorm.DB, platformIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(platformIDs))
	for _, id := range platformIDs {
		ids[id] = true
	}
	now := time.Now().UTC()
	for _, msg := range f.messages {
		if ids[msg.PlatformMessageID] {
			failed := false
			msg.AutoResponseSent = &failed
			msg.ResponseID = nil
			msg.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeMessageRepo) ResetStaleFailures(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reset int64
	for _, msg := range f.messages {
		if msg.AutoResponseSent != nil && !*msg.AutoResponseSent && msg.UpdatedAt.Before(olderThan) {
			msg.AutoResponseSent = nil
			reset++
		}
	}
	return reset, nil
}

type fakeFailureRepo struct {
	mu       sync.Mutex
	failures []*types.ResponseFailure
}

func (f *fakeFailureRepo) Create(ctx context.Context, tx *gorm.DB, failures []*types.ResponseFailure) ([]*types.ResponseFailure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, failure := range failures {
		if failure.CreatedAt.IsZero() {
			failure.CreatedAt = time.Now().UTC()
		}
		f.failures = append(f.failures, failure)
	}
	return failures, nil
}

func (f *fakeFailureRepo) RecentFailedSenders(ctx context.Context, tx *gorm.DB, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var senders []string
	for _, failure := range f.failures {
		if failure.CreatedAt.Before(since) || seen[failure.Sender] {
			continue
		}
		seen[failure.Sender] = true
		senders = append(senders, failure.Sender)
	}
	return senders, nil
}

// fakeChannel implements channel.Client. sendErr forces failures;
// blockOn, when set, holds Send until released so tests can observe the
// pipeline mid-dispatch.
type fakeChannel struct {
	mu      sync.Mutex
	sends   []string
	sendErr error
	blockOn chan struct{}
}

func (f *fakeChannel) Send(ctx context.Context, tenantID uuid.UUID, recipient, text string) (string, error) {
	if f.blockOn != nil {
		<-f.blockOn
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends = append(f.sends, text)
	return fmt.Sprintf("resp-%d", len(f.sends)), nil
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeChannel) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return ""
	}
	return f.sends[len(f.sends)-1]
}

// rig wires a full pipeline over the fakes with a controllable clock and
// no real sleeping.
type rig struct {
	coord    *fakeCoordinator
	tenants  *fakeTenantRepo
	messages *fakeMessageRepo
	failures *fakeFailureRepo
	channel  *fakeChannel
	events   *queue.EventQueue
	dedup    *DedupCache
	mutex    *ProcessingMutex
	gate     *ConversationGate
	pipeline *AutoResponseService
	sweep    *SweepService
	tenant   *types.Tenant
	now      time.Time
}

func newRig(tenant *types.Tenant) *rig {
	log := testLogger()
	r := &rig{
		coord:    newFakeCoordinator(),
		tenants:  newFakeTenantRepo(tenant),
		messages: &fakeMessageRepo{},
		failures: &fakeFailureRepo{},
		channel:  &fakeChannel{},
		tenant:   tenant,
		now:      time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC),
	}
	r.coord.nowFn = func() time.Time { return r.now }
	r.events = queue.NewEventQueue(r.coord, log)
	r.dedup = NewDedupCache(r.coord, log, DefaultClaimTTL)
	r.mutex = NewProcessingMutex(r.coord, log, DefaultMutexTTL)
	r.gate = NewConversationGate(r.coord, log)
	dispatcher := NewDispatcher(nil, log, r.channel, r.messages, r.failures, r.events)
	r.pipeline = NewAutoResponseService(
		nil, log, r.tenants, r.messages, r.dedup, r.mutex, r.gate, dispatcher,
		AutoResponseConfig{GroupWindow: DefaultGroupWindow, MutexBackoff: time.Millisecond},
	)
	r.pipeline.now = func() time.Time { return r.now }
	r.pipeline.sleep = func(time.Duration) {}
	r.sweep = NewSweepService(nil, log, r.events, r.messages, r.failures, r.pipeline, SweepConfig{
		BatchSize:   DefaultSweepBatchSize,
		Concurrency: 2,
	})
	r.sweep.now = func() time.Time { return r.now }
	return r
}

func (r *rig) addInbound(id, sender, text string, receivedAt time.Time) *types.Message {
	msg := &types.Message{
		ID:                uuid.New(),
		PlatformMessageID: id,
		TenantID:          r.tenant.ID,
		Sender:            sender,
		Direction:         types.DirectionInbound,
		ReceivedAt:        receivedAt,
		UpdatedAt:         receivedAt,
	}
	if strings.TrimSpace(text) != "" {
		msg.Text = &text
	}
	_, _ = r.messages.Create(context.Background(), nil, []*types.Message{msg})
	return msg
}

func (r *rig) event(messageID, sender string) queue.AutoResponseEvent {
	return queue.AutoResponseEvent{
		MessageID: messageID,
		TenantID:  r.tenant.ID,
		Sender:    sender,
		Timestamp: r.now,
	}
}

func testTenant() *types.Tenant {
	return &types.Tenant{
		ID:                  uuid.New(),
		DisplayName:         "Blossom Tea House",
		AutoResponseEnabled: true,
		Timezone:            "UTC",
	}
}
