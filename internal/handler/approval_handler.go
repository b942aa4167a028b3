package handler

import (
	"net/http"
	"time"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/apperror"
	"opsconsole/pkg/pagination"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		approvals.POST("", middleware.RequirePermission("approvals.create"), h.CreateRequest)
		approvals.POST("/preview", middleware.RequirePermission("approvals.create"), h.PreviewRequest)
		approvals.GET("", middleware.RequirePermission("approvals.read"), h.ListRequests)
		approvals.GET("/:id", middleware.RequirePermission("approvals.read"), h.GetRequest)
		approvals.PUT("/:id/approve", middleware.RequirePermission("approvals.review"), h.ApproveRequest)
		approvals.PUT("/:id/reject", middleware.RequirePermission("approvals.review"), h.RejectRequest)
		approvals.PUT("/:id/cancel", middleware.RequireRole("admin", "manager", "staff"), h.CancelRequest)
		approvals.POST("/expire-overdue", middleware.RequirePermission("approvals.review"), h.ExpireOverdue)
	}
}

// CreateRequest submits a new approval request
// @Summary      Submit an approval request
// @Description  Creates an approval request for a proposed business action. Requests within the configured thresholds are approved and executed immediately.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateApprovalRequestDTO  true  "Request payload"
// @Success      201      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/approvals [post]
func (h *ApprovalHandler) CreateRequest(c *gin.Context) {
	var req service.CreateApprovalRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.Create(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		// The decision is committed even when the downstream action fails;
		// report it as a warning rather than an operation failure.
		if apperror.IsKind(err, apperror.KindExecution) {
			c.JSON(http.StatusCreated, response.SuccessWithWarning(http.StatusCreated, result, err.Error()))
			return
		}
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// PreviewRequest evaluates auto-approval without creating a request
// @Summary      Preview the auto-approval outcome
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PreviewApprovalDTO  true  "Preview payload"
// @Success      200      {object}  response.Response{data=service.PreviewApprovalResult}
// @Router       /api/approvals/preview [post]
func (h *ApprovalHandler) PreviewRequest(c *gin.Context) {
	var req service.PreviewApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.approvalService.Preview(req)))
}

// ListRequests returns approval requests filtered by status, requester or date range
// @Summary      List approval requests
// @Tags         approvals
// @Produce      json
// @Param        status        query  string  false  "Status filter"
// @Param        requested_by  query  string  false  "Requester uid filter"
// @Param        from          query  string  false  "Requested-at lower bound (RFC3339)"
// @Param        to            query  string  false  "Requested-at upper bound (RFC3339)"
// @Success      200  {object}  response.Response
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListRequests(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.ApprovalFilter{
		Status:      model.RequestStatus(c.Query("status")),
		RequestedBy: c.Query("requested_by"),
		Page:        params.Page,
		Limit:       params.Limit,
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid 'from' timestamp"))
			return
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid 'to' timestamp"))
			return
		}
		filter.To = &ts
	}

	approvals, total, err := h.approvalService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   approvals,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetRequest returns a single approval request
// @Summary      Get an approval request
// @Tags         approvals
// @Produce      json
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	result, err := h.approvalService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveRequest approves a pending approval request
// @Summary      Approve a pending request
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true   "Request id"
// @Param        payload  body      service.ReviewNotesDTO  false  "Reviewer notes"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	var req service.ReviewNotesDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Notes are optional — allow an empty body
		req.Notes = ""
	}

	result, err := h.approvalService.Approve(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.Notes)
	if err != nil {
		if apperror.IsKind(err, apperror.KindExecution) {
			c.JSON(http.StatusOK, response.SuccessWithWarning(http.StatusOK, result, err.Error()))
			return
		}
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest rejects a pending approval request; a reason is mandatory
// @Summary      Reject a pending request
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Request id"
// @Param        payload  body      service.RejectRequestDTO  true  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	var req service.RejectRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Reason = ""
	}

	result, err := h.approvalService.Reject(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.Reason)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CancelRequest cancels a pending request; only the original requester may cancel
// @Summary      Cancel a pending request
// @Tags         approvals
// @Produce      json
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/approvals/{id}/cancel [put]
func (h *ApprovalHandler) CancelRequest(c *gin.Context) {
	result, err := h.approvalService.Cancel(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ExpireOverdue persists EXPIRED for overdue pending requests
// @Summary      Sweep overdue pending requests
// @Description  Optional maintenance endpoint; readers already observe overdue requests as EXPIRED without it.
// @Tags         approvals
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/approvals/expire-overdue [post]
func (h *ApprovalHandler) ExpireOverdue(c *gin.Context) {
	swept, err := h.approvalService.ExpireOverdue(c.Request.Context())
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"expired": swept}))
}
