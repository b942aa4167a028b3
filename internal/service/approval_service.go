package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	"opsconsole/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateApprovalRequestDTO struct {
	RequestType model.RequestType     `json:"request_type" binding:"required,oneof=COUPON_CREATION PROMOTION_CREATION PRICE_CHANGE BULK_DISCOUNT FLASH_SALE"`
	Payload     model.ApprovalPayload `json:"payload" binding:"required"`
	Notes       string                `json:"notes"`
	Priority    model.RequestPriority `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

type PreviewApprovalDTO struct {
	RequestType model.RequestType     `json:"request_type" binding:"required,oneof=COUPON_CREATION PROMOTION_CREATION PRICE_CHANGE BULK_DISCOUNT FLASH_SALE"`
	Payload     model.ApprovalPayload `json:"payload" binding:"required"`
}

type PreviewApprovalResult struct {
	AutoApprove bool                  `json:"auto_approve"`
	Priority    model.RequestPriority `json:"priority"`
}

type ApprovalFilter struct {
	Status      model.RequestStatus
	RequestedBy string
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}

type RejectRequestDTO struct {
	Reason string `json:"reason"`
}

type ReviewNotesDTO struct {
	Notes string `json:"notes"`
}

type ApprovalRequestResponse struct {
	ID              string                `json:"id"`
	RequestType     model.RequestType     `json:"request_type"`
	Status          model.RequestStatus   `json:"status"`
	Payload         model.ApprovalPayload `json:"payload"`
	Priority        model.RequestPriority `json:"priority"`
	RequestedBy     model.UserSnapshot    `json:"requested_by"`
	ReviewedBy      *model.UserSnapshot   `json:"reviewed_by,omitempty"`
	RequestedAt     string                `json:"requested_at"`
	ReviewedAt      *string               `json:"reviewed_at,omitempty"`
	ExpiresAt       *string               `json:"expires_at,omitempty"`
	AutoApproved    bool                  `json:"auto_approved"`
	Notes           string                `json:"notes,omitempty"`
	ReviewerNotes   string                `json:"reviewer_notes,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
}

// --- Interface ---

// ApprovalService is the workflow engine: the only component that mutates
// approval request status. Every request makes exactly one transition out of
// PENDING (auto-approval at creation counts as that transition).
type ApprovalService interface {
	Create(ctx context.Context, actorID string, req CreateApprovalRequestDTO) (ApprovalRequestResponse, error)
	Preview(req PreviewApprovalDTO) PreviewApprovalResult
	Get(ctx context.Context, id string) (ApprovalRequestResponse, error)
	List(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequestResponse, int64, error)
	Approve(ctx context.Context, id, reviewerID, reviewerNotes string) (ApprovalRequestResponse, error)
	Reject(ctx context.Context, id, reviewerID, reason string) (ApprovalRequestResponse, error)
	Cancel(ctx context.Context, id, actorID string) (ApprovalRequestResponse, error)
	ExpireOverdue(ctx context.Context) (int64, error)
}

type approvalService struct {
	approvals repository.ApprovalRepository
	users     repository.UserRepository
	audits    repository.AuditRepository
	txm       repository.TransactionManager
	registry  *ThresholdRegistry
	executor  ActionExecutor
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewApprovalService(
	approvals repository.ApprovalRepository,
	users repository.UserRepository,
	audits repository.AuditRepository,
	txm repository.TransactionManager,
	registry *ThresholdRegistry,
	executor ActionExecutor,
	notifier Notifier,
	logger *zap.Logger,
) ApprovalService {
	return &approvalService{
		approvals: approvals,
		users:     users,
		audits:    audits,
		txm:       txm,
		registry:  registry,
		executor:  executor,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// --- Implementation ---

func (s *approvalService) Create(ctx context.Context, actorID string, req CreateApprovalRequestDTO) (ApprovalRequestResponse, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	if err := req.Payload.Validate(req.RequestType); err != nil {
		return ApprovalRequestResponse{}, apperror.Wrap(apperror.KindInvalidArgument, "invalid payload", err)
	}

	now := s.now()
	autoApproved := s.registry.CanAutoApprove(req.RequestType, req.Payload)

	priority := req.Priority
	if priority == "" {
		priority = PriorityFor(req.RequestType, req.Payload)
	}

	record := &model.ApprovalRequest{
		RequestType:  req.RequestType,
		Status:       model.StatusPending,
		Payload:      req.Payload,
		Priority:     priority,
		RequestedBy:  model.SnapshotUser(actor),
		RequestedAt:  now,
		AutoApproved: autoApproved,
		Notes:        req.Notes,
	}
	if autoApproved {
		record.Status = model.StatusApproved
	} else {
		record.ExpiresAt = s.registry.ExpiresAt(req.RequestType, now)
	}

	action := model.ActionCreateApprovalRequest
	if autoApproved {
		action = model.ActionAutoApproveRequest
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.approvals.Create(txCtx, record); createErr != nil {
			return createErr
		}
		return s.writeAudit(txCtx, actor.ID, action, record, map[string]interface{}{
			"priority":      record.Priority,
			"auto_approved": autoApproved,
		})
	})
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	resp := toApprovalResponse(record, now)

	// Persistence committed before any side effect, so an executor failure
	// can never leave an unrecorded approval.
	if autoApproved {
		rule, _ := s.registry.Rule(req.RequestType)
		execErr := s.execute(ctx, record)
		if rule.NotifyOnAutoApprove {
			s.notifier.NotifyReviewers(ctx, NotifyAutoApproved, record)
		}
		if execErr != nil {
			return resp, execErr
		}
		return resp, nil
	}

	s.notifier.NotifyReviewers(ctx, NotifyPendingReview, record)
	return resp, nil
}

func (s *approvalService) Preview(req PreviewApprovalDTO) PreviewApprovalResult {
	return PreviewApprovalResult{
		AutoApprove: s.registry.CanAutoApprove(req.RequestType, req.Payload),
		Priority:    PriorityFor(req.RequestType, req.Payload),
	}
}

func (s *approvalService) Get(ctx context.Context, id string) (ApprovalRequestResponse, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}
	return toApprovalResponse(record, s.now()), nil
}

func (s *approvalService) List(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequestResponse, int64, error) {
	now := s.now()
	records, total, err := s.approvals.List(ctx, repository.ApprovalQuery{
		Status:      filter.Status,
		RequestedBy: filter.RequestedBy,
		From:        filter.From,
		To:          filter.To,
		Page:        filter.Page,
		Limit:       filter.Limit,
	}, now)
	if err != nil {
		return nil, 0, err
	}

	result := make([]ApprovalRequestResponse, 0, len(records))
	for i := range records {
		result = append(result, toApprovalResponse(&records[i], now))
	}
	return result, total, nil
}

func (s *approvalService) Approve(ctx context.Context, id, reviewerID, reviewerNotes string) (ApprovalRequestResponse, error) {
	reviewer, err := s.resolveActor(ctx, reviewerID)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	record, err = s.decide(ctx, record, reviewer, func(r *model.ApprovalRequest) {
		r.Status = model.StatusApproved
		r.ReviewerNotes = reviewerNotes
	}, model.ActionApproveRequest)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	resp := toApprovalResponse(record, s.now())
	execErr := s.execute(ctx, record)
	s.notifier.NotifyRequester(ctx, NotifyApproved, record)
	if execErr != nil {
		return resp, execErr
	}
	return resp, nil
}

func (s *approvalService) Reject(ctx context.Context, id, reviewerID, reason string) (ApprovalRequestResponse, error) {
	if strings.TrimSpace(reason) == "" {
		return ApprovalRequestResponse{}, apperror.New(apperror.KindInvalidArgument, "rejection reason is required")
	}

	reviewer, err := s.resolveActor(ctx, reviewerID)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	record, err = s.decide(ctx, record, reviewer, func(r *model.ApprovalRequest) {
		r.Status = model.StatusRejected
		r.RejectionReason = reason
	}, model.ActionRejectRequest)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	s.notifier.NotifyRequester(ctx, NotifyRejected, record)
	return toApprovalResponse(record, s.now()), nil
}

func (s *approvalService) Cancel(ctx context.Context, id, actorID string) (ApprovalRequestResponse, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	record, err := s.load(ctx, id)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}
	if record.RequestedBy.UID != actor.ID.String() {
		return ApprovalRequestResponse{}, apperror.New(apperror.KindForbidden, "only the requester may cancel a request")
	}

	record, err = s.decide(ctx, record, actor, func(r *model.ApprovalRequest) {
		r.Status = model.StatusCancelled
	}, model.ActionCancelRequest)
	if err != nil {
		return ApprovalRequestResponse{}, err
	}

	// Cancellation by the requester needs no notification.
	return toApprovalResponse(record, s.now()), nil
}

func (s *approvalService) ExpireOverdue(ctx context.Context) (int64, error) {
	now := s.now()
	var swept int64
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var sweepErr error
		swept, sweepErr = s.approvals.ExpireOverdue(txCtx, now)
		if sweepErr != nil || swept == 0 {
			return sweepErr
		}
		details, _ := json.Marshal(map[string]interface{}{"count": swept})
		return s.audits.Log(txCtx, &model.AuditLog{
			Action:  model.ActionExpireRequests,
			Details: string(details),
		})
	})
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		s.logger.Info("expired overdue approval requests", zap.Int64("count", swept))
	}
	return swept, nil
}

// --- internal helpers ---

// decide performs the single PENDING -> terminal transition. The precondition
// is re-checked by the conditional update, so when two decisions race exactly
// one wins and the loser observes InvalidState.
func (s *approvalService) decide(
	ctx context.Context,
	record *model.ApprovalRequest,
	reviewer *model.User,
	mutate func(*model.ApprovalRequest),
	action string,
) (*model.ApprovalRequest, error) {
	now := s.now()
	if status := record.EffectiveStatus(now); status != model.StatusPending {
		return nil, apperror.Newf(apperror.KindInvalidState, "request is already %s", status)
	}

	record.ReviewedBy = model.SnapshotUser(reviewer)
	record.ReviewedAt = &now
	mutate(record)

	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		won, txErr := s.approvals.Transition(txCtx, record)
		if txErr != nil {
			return txErr
		}
		if !won {
			return apperror.New(apperror.KindInvalidState, "request was already decided")
		}
		return s.writeAudit(txCtx, reviewer.ID, action, record, map[string]interface{}{
			"status": record.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *approvalService) resolveActor(ctx context.Context, actorID string) (*model.User, error) {
	if actorID == "" {
		return nil, apperror.New(apperror.KindUnauthenticated, "no acting user")
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.KindUnauthenticated, "unknown acting user", err)
		}
		return nil, err
	}
	return actor, nil
}

func (s *approvalService) load(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidArgument, "invalid request id", err)
	}
	record, err := s.approvals.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Newf(apperror.KindNotFound, "approval request %s not found", id)
		}
		return nil, err
	}
	return record, nil
}

// execute runs the downstream action for an approved request. The APPROVED
// status stays committed even when the action fails; the audit trail records
// what was decided, not what technically executed.
func (s *approvalService) execute(ctx context.Context, record *model.ApprovalRequest) error {
	if err := s.executor.Execute(ctx, record); err != nil {
		s.logger.Warn("action executor failed after approval",
			zap.String("request_id", record.ID.String()),
			zap.String("request_type", string(record.RequestType)),
			zap.Error(err))
		return apperror.Wrap(apperror.KindExecution, "approved action failed to execute", err)
	}
	return nil
}

func (s *approvalService) writeAudit(ctx context.Context, userID uuid.UUID, action string, record *model.ApprovalRequest, extra map[string]interface{}) error {
	fields := map[string]interface{}{
		"request_type": record.RequestType,
	}
	for k, v := range extra {
		fields[k] = v
	}
	details, _ := json.Marshal(fields)

	return s.audits.Log(ctx, &model.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityID:   record.ID.String(),
		EntityName: string(record.RequestType),
		Details:    string(details),
	})
}

// --- Helpers ---

func toApprovalResponse(r *model.ApprovalRequest, now time.Time) ApprovalRequestResponse {
	resp := ApprovalRequestResponse{
		ID:              r.ID.String(),
		RequestType:     r.RequestType,
		Status:          r.EffectiveStatus(now),
		Payload:         r.Payload,
		Priority:        r.Priority,
		RequestedBy:     r.RequestedBy,
		RequestedAt:     r.RequestedAt.Format(time.RFC3339),
		AutoApproved:    r.AutoApproved,
		Notes:           r.Notes,
		ReviewerNotes:   r.ReviewerNotes,
		RejectionReason: r.RejectionReason,
	}

	if !r.ReviewedBy.IsZero() {
		reviewed := r.ReviewedBy
		resp.ReviewedBy = &reviewed
	}
	if r.ReviewedAt != nil {
		ts := r.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &ts
	}
	if r.ExpiresAt != nil {
		ts := r.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &ts
	}

	return resp
}
