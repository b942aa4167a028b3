package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	"opsconsole/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- In-memory fakes ---

type fakeApprovalRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.ApprovalRequest
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{records: make(map[uuid.UUID]model.ApprovalRequest)}
}

func (r *fakeApprovalRepo) Create(_ context.Context, req *model.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	r.records[req.ID] = *req
	return nil
}

func (r *fakeApprovalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *fakeApprovalRepo) List(_ context.Context, q repository.ApprovalQuery, now time.Time) ([]model.ApprovalRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ApprovalRequest
	for _, rec := range r.records {
		if q.Status != "" && rec.EffectiveStatus(now) != q.Status {
			continue
		}
		if q.RequestedBy != "" && rec.RequestedBy.UID != q.RequestedBy {
			continue
		}
		if q.From != nil && rec.RequestedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && rec.RequestedAt.After(*q.To) {
			continue
		}
		out = append(out, rec)
	}
	return out, int64(len(out)), nil
}

// Transition mirrors the conditional UPDATE: the write only lands if the
// stored row is still PENDING.
func (r *fakeApprovalRepo) Transition(_ context.Context, req *model.ApprovalRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[req.ID]
	if !ok || cur.Status != model.StatusPending {
		return false, nil
	}
	r.records[req.ID] = *req
	return true, nil
}

func (r *fakeApprovalRepo) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var swept int64
	for id, rec := range r.records {
		if rec.ExpiredBy(now) {
			rec.Status = model.StatusExpired
			r.records[id] = rec
			swept++
		}
	}
	return swept, nil
}

func (r *fakeApprovalRepo) stored(t *testing.T, id string) model.ApprovalRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	rec, ok := r.records[parsed]
	require.True(t, ok, "request %s not stored", id)
	return rec
}

type fakeUserRepo struct {
	users map[string]model.User
}

func (r *fakeUserRepo) Create(context.Context, *model.User) error { return nil }
func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}
func (r *fakeUserRepo) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeUserRepo) GetByUsername(context.Context, string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeUserRepo) List(context.Context, int, int) ([]model.User, int64, error) {
	return nil, 0, nil
}
func (r *fakeUserRepo) Update(context.Context, *model.User) error { return nil }
func (r *fakeUserRepo) Delete(context.Context, string) error { return nil }
func (r *fakeUserRepo) SaveRefreshToken(context.Context, *model.RefreshToken) error { return nil }
func (r *fakeUserRepo) GetRefreshToken(context.Context, string) (*model.RefreshToken, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *fakeUserRepo) DeleteRefreshToken(context.Context, string) error { return nil }

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (r *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) List(context.Context, int, int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AuditLog(nil), r.entries...), int64(len(r.entries)), nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeExecutor struct {
	mu   sync.Mutex
	reqs []*model.ApprovalRequest
	fail error
}

func (e *fakeExecutor) Execute(_ context.Context, req *model.ApprovalRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return e.fail
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reqs)
}

func (e *fakeExecutor) lastRequest() *model.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.reqs) == 0 {
		return nil
	}
	return e.reqs[len(e.reqs)-1]
}

type notifyEvent struct {
	method string // "reviewers" or "requester"
	kind   NotificationKind
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
}

func (n *fakeNotifier) NotifyReviewers(_ context.Context, kind NotificationKind, _ *model.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifyEvent{method: "reviewers", kind: kind})
}

func (n *fakeNotifier) NotifyRequester(_ context.Context, kind NotificationKind, _ *model.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifyEvent{method: "requester", kind: kind})
}

func (n *fakeNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

// --- Fixture ---

type engineFixture struct {
	svc       ApprovalService
	repo      *fakeApprovalRepo
	audits    *fakeAuditRepo
	executor  *fakeExecutor
	notifier  *fakeNotifier
	now       time.Time
	requester model.User
	reviewer  model.User
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	fx := &engineFixture{
		repo:     newFakeApprovalRepo(),
		audits:   &fakeAuditRepo{},
		executor: &fakeExecutor{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		requester: model.User{
			ID: uuid.New(), Username: "staff.one", Email: "staff@example.com", Role: "staff",
		},
		reviewer: model.User{
			ID: uuid.New(), Username: "manager.one", Email: "manager@example.com", Role: "manager",
		},
	}

	users := &fakeUserRepo{users: map[string]model.User{
		fx.requester.ID.String(): fx.requester,
		fx.reviewer.ID.String():  fx.reviewer,
	}}

	svc := NewApprovalService(
		fx.repo, users, fx.audits, fakeTxManager{},
		DefaultThresholdRegistry(), fx.executor, fx.notifier, zap.NewNop(),
	)
	svc.(*approvalService).now = func() time.Time { return fx.now }
	fx.svc = svc
	return fx
}

func (fx *engineFixture) createPending(t *testing.T, req CreateApprovalRequestDTO) ApprovalRequestResponse {
	t.Helper()
	resp, err := fx.svc.Create(context.Background(), fx.requester.ID.String(), req)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, resp.Status)
	return resp
}

// --- Tests ---

func TestCreateAutoApprovesWithinThresholds(t *testing.T) {
	fx := newEngineFixture(t)
	payload := couponPayload(model.DiscountTypePercentage, 10)

	resp, err := fx.svc.Create(context.Background(), fx.requester.ID.String(), CreateApprovalRequestDTO{
		RequestType: model.RequestTypeCouponCreation,
		Payload:     payload,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, resp.Status)
	assert.True(t, resp.AutoApproved)
	assert.Nil(t, resp.ExpiresAt)
	assert.Equal(t, fx.requester.ID.String(), resp.RequestedBy.UID)
	assert.Equal(t, 1, fx.executor.callCount())
	require.NotNil(t, fx.executor.lastRequest())
	assert.Equal(t, payload, fx.executor.lastRequest().Payload)
	assert.Equal(t, []NotificationKind{NotifyAutoApproved}, fx.notifier.kinds())
	assert.Equal(t, []string{model.ActionAutoApproveRequest}, fx.audits.actions())

	stored := fx.repo.stored(t, resp.ID)
	assert.Equal(t, model.StatusApproved, stored.Status)
}

func TestPriceChangeAutoApprovesSilently(t *testing.T) {
	fx := newEngineFixture(t)
	payload := priceChangePayload(8)

	resp, err := fx.svc.Create(context.Background(), fx.requester.ID.String(), CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     payload,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, resp.Status)
	assert.True(t, resp.AutoApproved)
	assert.Equal(t, 1, fx.executor.callCount())
	require.NotNil(t, fx.executor.lastRequest())
	assert.Equal(t, payload, fx.executor.lastRequest().Payload)
	// Price changes carry no auto-approval notification.
	assert.Empty(t, fx.notifier.kinds())
	assert.Equal(t, []string{model.ActionAutoApproveRequest}, fx.audits.actions())
}

func TestCreateAboveThresholdStaysPending(t *testing.T) {
	fx := newEngineFixture(t)

	resp, err := fx.svc.Create(context.Background(), fx.requester.ID.String(), CreateApprovalRequestDTO{
		RequestType: model.RequestTypeCouponCreation,
		Payload:     couponPayload(model.DiscountTypePercentage, 35),
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, resp.Status)
	assert.False(t, resp.AutoApproved)
	assert.Equal(t, model.PriorityHigh, resp.Priority)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, fx.now.Add(72*time.Hour).Format(time.RFC3339), *resp.ExpiresAt)
	assert.Equal(t, 0, fx.executor.callCount())
	assert.Equal(t, []NotificationKind{NotifyPendingReview}, fx.notifier.kinds())
	assert.Equal(t, []string{model.ActionCreateApprovalRequest}, fx.audits.actions())
}

func TestCreateHonorsExplicitPriority(t *testing.T) {
	fx := newEngineFixture(t)

	resp := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypeCouponCreation,
		Payload:     couponPayload(model.DiscountTypePercentage, 35),
		Priority:    model.PriorityLow,
	})

	assert.Equal(t, model.PriorityLow, resp.Priority)
}

func TestCreateRejectsMismatchedPayload(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.svc.Create(context.Background(), fx.requester.ID.String(), CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     couponPayload(model.DiscountTypePercentage, 10),
	})

	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))
	assert.Equal(t, 0, fx.executor.callCount())
}

func TestCreateRequiresKnownActor(t *testing.T) {
	fx := newEngineFixture(t)
	dto := CreateApprovalRequestDTO{
		RequestType: model.RequestTypeCouponCreation,
		Payload:     couponPayload(model.DiscountTypePercentage, 10),
	}

	_, err := fx.svc.Create(context.Background(), "", dto)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthenticated))

	_, err = fx.svc.Create(context.Background(), uuid.NewString(), dto)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthenticated))
}

func TestFlashSaleAlwaysRequiresReview(t *testing.T) {
	fx := newEngineFixture(t)

	resp := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypeFlashSale,
		Payload:     flashSalePayload(5),
	})

	assert.Equal(t, model.PriorityUrgent, resp.Priority)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, fx.now.Add(24*time.Hour).Format(time.RFC3339), *resp.ExpiresAt)
	assert.Equal(t, 0, fx.executor.callCount())
}

func TestApproveExecutesActionOnce(t *testing.T) {
	fx := newEngineFixture(t)
	payload := priceChangePayload(40)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     payload,
	})

	resp, err := fx.svc.Approve(context.Background(), created.ID, fx.reviewer.ID.String(), "checked with pricing")
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, resp.Status)
	assert.False(t, resp.AutoApproved)
	require.NotNil(t, resp.ReviewedBy)
	assert.Equal(t, fx.reviewer.ID.String(), resp.ReviewedBy.UID)
	assert.Equal(t, "checked with pricing", resp.ReviewerNotes)
	assert.Equal(t, 1, fx.executor.callCount())
	require.NotNil(t, fx.executor.lastRequest())
	assert.Equal(t, payload, fx.executor.lastRequest().Payload)
	assert.Contains(t, fx.notifier.kinds(), NotifyApproved)

	// The decision cannot be repeated.
	_, err = fx.svc.Approve(context.Background(), created.ID, fx.reviewer.ID.String(), "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))
	assert.Equal(t, 1, fx.executor.callCount())
}

func TestApproveSurvivesExecutorFailure(t *testing.T) {
	fx := newEngineFixture(t)
	fx.executor.fail = errors.New("coupon service unavailable")

	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypeCouponCreation,
		Payload:     couponPayload(model.DiscountTypePercentage, 35),
	})

	resp, err := fx.svc.Approve(context.Background(), created.ID, fx.reviewer.ID.String(), "")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindExecution))

	// The approval is committed regardless of the downstream failure.
	assert.Equal(t, model.StatusApproved, resp.Status)
	stored := fx.repo.stored(t, created.ID)
	assert.Equal(t, model.StatusApproved, stored.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	fx := newEngineFixture(t)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})

	_, err := fx.svc.Reject(context.Background(), created.ID, fx.reviewer.ID.String(), "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

	// A whitespace-only reason is just as blank.
	_, err = fx.svc.Reject(context.Background(), created.ID, fx.reviewer.ID.String(), "   \t")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

	stored := fx.repo.stored(t, created.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestRejectRecordsReason(t *testing.T) {
	fx := newEngineFixture(t)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypeBulkDiscount,
		Payload:     bulkDiscountPayload(30, 100),
	})

	resp, err := fx.svc.Reject(context.Background(), created.ID, fx.reviewer.ID.String(), "margin too thin")
	require.NoError(t, err)

	assert.Equal(t, model.StatusRejected, resp.Status)
	assert.Equal(t, "margin too thin", resp.RejectionReason)
	assert.Equal(t, 0, fx.executor.callCount())
	assert.Contains(t, fx.notifier.kinds(), NotifyRejected)
}

func TestCancelOnlyByRequester(t *testing.T) {
	fx := newEngineFixture(t)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})

	_, err := fx.svc.Cancel(context.Background(), created.ID, fx.reviewer.ID.String())
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	notificationsBefore := len(fx.notifier.kinds())
	resp, err := fx.svc.Cancel(context.Background(), created.ID, fx.requester.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, resp.Status)
	// Cancellation sends no notification.
	assert.Len(t, fx.notifier.kinds(), notificationsBefore)
}

func TestConcurrentDecisionsExactlyOneWins(t *testing.T) {
	fx := newEngineFixture(t)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})

	var wg sync.WaitGroup
	var approveErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = fx.svc.Approve(context.Background(), created.ID, fx.reviewer.ID.String(), "")
	}()
	go func() {
		defer wg.Done()
		_, rejectErr = fx.svc.Reject(context.Background(), created.ID, fx.reviewer.ID.String(), "no")
	}()
	wg.Wait()

	wins := 0
	for _, err := range []error{approveErr, rejectErr} {
		if err == nil || apperror.IsKind(err, apperror.KindExecution) {
			wins++
		} else {
			assert.True(t, apperror.IsKind(err, apperror.KindInvalidState), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	stored := fx.repo.stored(t, created.ID)
	assert.True(t, stored.Status.Terminal())
	if approveErr == nil {
		assert.Equal(t, model.StatusApproved, stored.Status)
	} else {
		assert.Equal(t, model.StatusRejected, stored.Status)
	}
}

func TestExpiredRequestCannotBeDecided(t *testing.T) {
	fx := newEngineFixture(t)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})

	// Jump past the 48h price-change window.
	fx.now = fx.now.Add(49 * time.Hour)

	got, err := fx.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)

	_, err = fx.svc.Approve(context.Background(), created.ID, fx.reviewer.ID.String(), "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))
	_, err = fx.svc.Reject(context.Background(), created.ID, fx.reviewer.ID.String(), "late")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))

	// Storage still says PENDING until a sweep runs; readers see EXPIRED.
	assert.Equal(t, model.StatusPending, fx.repo.stored(t, created.ID).Status)
}

func TestExpireOverdueSweep(t *testing.T) {
	fx := newEngineFixture(t)
	overdueA := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})
	overdueB := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypeFlashSale,
		Payload:     flashSalePayload(50),
	})

	fx.now = fx.now.Add(60 * time.Hour)
	live := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypeCouponCreation,
		Payload:     couponPayload(model.DiscountTypePercentage, 35),
	})

	swept, err := fx.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	assert.Equal(t, model.StatusExpired, fx.repo.stored(t, overdueA.ID).Status)
	assert.Equal(t, model.StatusExpired, fx.repo.stored(t, overdueB.ID).Status)
	assert.Equal(t, model.StatusPending, fx.repo.stored(t, live.ID).Status)
	assert.Contains(t, fx.audits.actions(), model.ActionExpireRequests)
}

func TestListTranslatesOverduePending(t *testing.T) {
	fx := newEngineFixture(t)
	created := fx.createPending(t, CreateApprovalRequestDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})

	fx.now = fx.now.Add(72 * time.Hour)

	pending, _, err := fx.svc.List(context.Background(), ApprovalFilter{Status: model.StatusPending, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, pending)

	expired, _, err := fx.svc.List(context.Background(), ApprovalFilter{Status: model.StatusExpired, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, created.ID, expired[0].ID)
	assert.Equal(t, model.StatusExpired, expired[0].Status)
}

func TestPreviewMatchesCreateOutcome(t *testing.T) {
	fx := newEngineFixture(t)

	small := fx.svc.Preview(PreviewApprovalDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(8),
	})
	assert.True(t, small.AutoApprove)
	assert.Equal(t, model.PriorityNormal, small.Priority)

	large := fx.svc.Preview(PreviewApprovalDTO{
		RequestType: model.RequestTypePriceChange,
		Payload:     priceChangePayload(40),
	})
	assert.False(t, large.AutoApprove)
	assert.Equal(t, model.PriorityHigh, large.Priority)
}

func TestGetUnknownRequest(t *testing.T) {
	fx := newEngineFixture(t)

	_, err := fx.svc.Get(context.Background(), "not-a-uuid")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

	_, err = fx.svc.Get(context.Background(), uuid.NewString())
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}
