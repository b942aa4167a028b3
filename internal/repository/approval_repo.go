package repository

import (
	"context"
	"time"

	"opsconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalQuery filters the approval request listing.
type ApprovalQuery struct {
	Status      model.RequestStatus // empty for all
	RequestedBy string              // requester uid, empty for all
	From        *time.Time          // requested_at >= From
	To          *time.Time          // requested_at <= To
	Page        int
	Limit       int
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, q ApprovalQuery, now time.Time) ([]model.ApprovalRequest, int64, error)
	// Transition writes req's status and review fields with a conditional
	// update keyed on the previously observed PENDING status. It reports
	// false when the row was no longer PENDING, so that of two racing
	// decisions exactly one succeeds.
	Transition(ctx context.Context, req *model.ApprovalRequest) (bool, error)
	// ExpireOverdue persists EXPIRED for PENDING rows whose deadline has
	// passed and returns the number of rows swept.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// applyStatusFilter translates a status filter into SQL that accounts for
// passive expiration: overdue PENDING rows read as EXPIRED even before any
// sweep persists it.
func applyStatusFilter(db *gorm.DB, status model.RequestStatus, now time.Time) *gorm.DB {
	switch status {
	case "":
		return db
	case model.StatusPending:
		return db.Where("status = ? AND (expires_at IS NULL OR expires_at > ?)", model.StatusPending, now)
	case model.StatusExpired:
		return db.Where("status = ? OR (status = ? AND expires_at IS NOT NULL AND expires_at <= ?)",
			model.StatusExpired, model.StatusPending, now)
	default:
		return db.Where("status = ?", status)
	}
}

func (r *approvalRepository) List(ctx context.Context, q ApprovalQuery, now time.Time) ([]model.ApprovalRequest, int64, error) {
	db := GetDB(ctx, r.db)

	build := func() *gorm.DB {
		query := db.Model(&model.ApprovalRequest{})
		query = applyStatusFilter(query, q.Status, now)
		if q.RequestedBy != "" {
			query = query.Where("requested_by_uid = ?", q.RequestedBy)
		}
		if q.From != nil {
			query = query.Where("requested_at >= ?", *q.From)
		}
		if q.To != nil {
			query = query.Where("requested_at <= ?", *q.To)
		}
		return query
	}

	var total int64
	if err := build().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	var requests []model.ApprovalRequest
	if err := build().Order("requested_at DESC").Offset(offset).Limit(q.Limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *approvalRepository) Transition(ctx context.Context, req *model.ApprovalRequest) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", req.ID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":               req.Status,
			"reviewed_by_uid":      req.ReviewedBy.UID,
			"reviewed_by_username": req.ReviewedBy.Username,
			"reviewed_by_email":    req.ReviewedBy.Email,
			"reviewed_by_role":     req.ReviewedBy.Role,
			"reviewed_at":          req.ReviewedAt,
			"reviewer_notes":       req.ReviewerNotes,
			"rejection_reason":     req.RejectionReason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *approvalRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.StatusPending, now).
		Update("status", model.StatusExpired)
	return res.RowsAffected, res.Error
}
