package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	auth            *middleware.Authenticator
}

func NewApprovalHandler(approvalService service.ApprovalService, auth *middleware.Authenticator) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, auth: auth}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/approvals")
	{
		approvals.GET("", h.auth.RequirePermission(model.PermApprovalsRead), h.ListApprovalRequests)
		approvals.GET("/:id", h.auth.RequirePermission(model.PermApprovalsRead), h.GetApprovalRequest)
		approvals.POST("/refunds", h.auth.RequirePermission(model.PermApprovalsRequest), h.CreateRefundRequest)
		approvals.PUT("/:id/approve", h.auth.RequirePermission(model.PermApprovalsDecide), h.ApproveRequest)
		approvals.PUT("/:id/reject", h.auth.RequirePermission(model.PermApprovalsDecide), h.RejectRequest)
	}
}

// ListApprovalRequests returns approval requests, optionally filtered by status and type
// @Summary      List approval requests
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "PENDING, APPROVED or REJECTED"
// @Param        type    query     string  false  "COMMISSION_PAYOUT or CLIENT_REFUND"
// @Param        page    query     int     false  "Page number"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Response{data=[]service.ApprovalRequestResponse}
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListApprovalRequests(c *gin.Context) {
	p := pagination.Parse(c)
	approvals, total, err := h.approvalService.ListApprovalRequests(c.Request.Context(), service.ApprovalFilter{
		Status:      c.Query("status"),
		RequestType: c.Query("type"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, approvals, p.Page, p.Limit, total))
}

// GetApprovalRequest returns one approval request
// @Summary      Get approval request
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Approval request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetApprovalRequest(c *gin.Context) {
	result, err := h.approvalService.GetApprovalRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CreateRefundRequest opens a refund approval for a sale
// @Summary      Request a client refund
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRefundRequest  true  "Refund"
// @Success      201      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/refunds [post]
func (h *ApprovalHandler) CreateRefundRequest(c *gin.Context) {
	var req service.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.approvalService.CreateRefundRequest(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ApproveRequest approves a pending approval request
// @Summary      Approve request
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Approval request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	result, err := h.approvalService.ApproveRequest(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest rejects a pending approval request
// @Summary      Reject request
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Approval request ID"
// @Param        payload  body      service.RejectRequestDTO  true  "Reason"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	var req service.RejectRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.approvalService.RejectRequest(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
