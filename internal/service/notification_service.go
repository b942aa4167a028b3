package service

import (
	"context"
	"encoding/json"
	"fmt"

	"opsconsole/internal/model"
	ws "opsconsole/internal/websocket"

	"go.uber.org/zap"
)

// NotificationKind identifies the workflow event a notification describes.
type NotificationKind string

const (
	NotifyPendingReview NotificationKind = "approval.pending_review"
	NotifyAutoApproved  NotificationKind = "approval.auto_approved"
	NotifyApproved      NotificationKind = "approval.approved"
	NotifyRejected      NotificationKind = "approval.rejected"
)

// Notifier delivers workflow notifications. Delivery is best-effort:
// failures are logged and never surfaced as operation failures, and no
// notification may block or reverse a status transition.
type Notifier interface {
	NotifyReviewers(ctx context.Context, kind NotificationKind, req *model.ApprovalRequest)
	NotifyRequester(ctx context.Context, kind NotificationKind, req *model.ApprovalRequest)
}

// notificationMessage is the JSON envelope pushed to connected consoles.
type notificationMessage struct {
	Kind        NotificationKind      `json:"kind"`
	Audience    string                `json:"audience"` // "reviewers" or a requester uid
	RequestID   string                `json:"request_id"`
	RequestType model.RequestType     `json:"request_type"`
	Status      model.RequestStatus   `json:"status"`
	Priority    model.RequestPriority `json:"priority"`
	Message     string                `json:"message"`
}

type hubNotifier struct {
	hub    *ws.Hub
	logger *zap.Logger
}

// NewHubNotifier returns a Notifier that broadcasts workflow events over the
// websocket hub feeding the reviewer consoles.
func NewHubNotifier(hub *ws.Hub, logger *zap.Logger) Notifier {
	return &hubNotifier{hub: hub, logger: logger}
}

func (n *hubNotifier) NotifyReviewers(ctx context.Context, kind NotificationKind, req *model.ApprovalRequest) {
	n.push(notificationMessage{
		Kind:        kind,
		Audience:    "reviewers",
		RequestID:   req.ID.String(),
		RequestType: req.RequestType,
		Status:      req.Status,
		Priority:    req.Priority,
		Message:     reviewerText(kind, req),
	})
}

func (n *hubNotifier) NotifyRequester(ctx context.Context, kind NotificationKind, req *model.ApprovalRequest) {
	n.push(notificationMessage{
		Kind:        kind,
		Audience:    req.RequestedBy.UID,
		RequestID:   req.ID.String(),
		RequestType: req.RequestType,
		Status:      req.Status,
		Priority:    req.Priority,
		Message:     requesterText(kind, req),
	})
}

func (n *hubNotifier) push(msg notificationMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Warn("failed to encode notification",
			zap.String("kind", string(msg.Kind)),
			zap.String("request_id", msg.RequestID),
			zap.Error(err))
		return
	}

	select {
	case n.hub.Broadcast <- payload:
	default:
		// Hub not draining; notifications are best-effort so drop rather than block.
		n.logger.Warn("notification dropped",
			zap.String("kind", string(msg.Kind)),
			zap.String("request_id", msg.RequestID))
	}
}

func reviewerText(kind NotificationKind, req *model.ApprovalRequest) string {
	switch kind {
	case NotifyAutoApproved:
		return fmt.Sprintf("%s request by %s was auto-approved", req.RequestType, req.RequestedBy.Username)
	default:
		return fmt.Sprintf("%s request by %s is awaiting review", req.RequestType, req.RequestedBy.Username)
	}
}

func requesterText(kind NotificationKind, req *model.ApprovalRequest) string {
	switch kind {
	case NotifyApproved:
		return fmt.Sprintf("Your %s request was approved by %s", req.RequestType, req.ReviewedBy.Username)
	case NotifyRejected:
		return fmt.Sprintf("Your %s request was rejected: %s", req.RequestType, req.RejectionReason)
	default:
		return fmt.Sprintf("Your %s request is %s", req.RequestType, req.Status)
	}
}
