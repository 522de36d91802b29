package handler

import (
	"net/http"
	"strconv"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// default commission window when ?from/?to are omitted
const commissionWindow = 30 * 24 * time.Hour

type PartnerHandler struct {
	partnerService service.PartnerService
	auth           *middleware.Authenticator
}

func NewPartnerHandler(partnerService service.PartnerService, auth *middleware.Authenticator) *PartnerHandler {
	return &PartnerHandler{partnerService: partnerService, auth: auth}
}

func (h *PartnerHandler) RegisterRoutes(router *gin.RouterGroup) {
	partners := router.Group("/partners")
	{
		partners.GET("", h.auth.RequirePermission(model.PermPartnersRead), h.ListPartners)
		partners.GET("/:id", h.auth.RequirePermission(model.PermPartnersRead), h.GetPartner)
		partners.POST("", h.auth.RequirePermission(model.PermPartnersWrite), h.CreatePartner)
		partners.PUT("/:id", h.auth.RequirePermission(model.PermPartnersWrite), h.UpdatePartner)
		partners.DELETE("/:id", h.auth.RequirePermission(model.PermPartnersWrite), h.DeletePartner)

		partners.GET("/:id/commissions", h.auth.RequirePermission(model.PermCommissionsRead), h.CommissionReport)
		partners.GET("/:id/payouts", h.auth.RequirePermission(model.PermCommissionsRead), h.ListPayouts)
		partners.POST("/:id/payouts", h.auth.RequirePermission(model.PermCommissionsReq), h.RequestPayout)
	}
}

// ListPartners returns paginated partners with optional search
// @Summary      List partners
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        page         query     int     false  "Page number (default: 1)"
// @Param        limit        query     int     false  "Items per page (default: 20)"
// @Param        search       query     string  false  "Search by name, document, email"
// @Param        only_active  query     bool    false  "Only active partners"
// @Success      200          {object}  response.Response{data=[]service.PartnerResponse}
// @Router       /api/partners [get]
func (h *PartnerHandler) ListPartners(c *gin.Context) {
	p := pagination.Parse(c)
	onlyActive, _ := strconv.ParseBool(c.Query("only_active"))

	partners, total, err := h.partnerService.ListPartners(c.Request.Context(), c.Query("search"), onlyActive, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, partners, p.Page, p.Limit, total))
}

// GetPartner returns one partner
// @Summary      Get partner
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Partner ID"
// @Success      200  {object}  response.Response{data=service.PartnerResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/partners/{id} [get]
func (h *PartnerHandler) GetPartner(c *gin.Context) {
	partner, err := h.partnerService.GetPartner(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, partner))
}

// CreatePartner creates a new partner
// @Summary      Create partner
// @Tags         partners
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.CreatePartnerRequest  true  "Partner data"
// @Success      201   {object}  response.Response{data=service.PartnerResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/partners [post]
func (h *PartnerHandler) CreatePartner(c *gin.Context) {
	var req service.CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	partner, err := h.partnerService.CreatePartner(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, partner))
}

// UpdatePartner updates an existing partner
// @Summary      Update partner
// @Tags         partners
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                        true  "Partner ID"
// @Param        body  body      service.UpdatePartnerRequest  true  "Partner data"
// @Success      200   {object}  response.Response{data=service.PartnerResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/partners/{id} [put]
func (h *PartnerHandler) UpdatePartner(c *gin.Context) {
	var req service.UpdatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	partner, err := h.partnerService.UpdatePartner(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, partner))
}

// DeletePartner soft-deletes a partner
// @Summary      Delete partner
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Partner ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/partners/{id} [delete]
func (h *PartnerHandler) DeletePartner(c *gin.Context) {
	if err := h.partnerService.DeletePartner(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Partner deleted successfully"}))
}

// CommissionReport computes a partner's commission over a period
// @Summary      Commission report
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id    path      string  true   "Partner ID"
// @Param        from  query     string  false  "Start (RFC3339 or YYYY-MM-DD)"
// @Param        to    query     string  false  "End, exclusive (RFC3339 or YYYY-MM-DD inclusive day)"
// @Success      200   {object}  response.Response{data=service.CommissionReport}
// @Router       /api/partners/{id}/commissions [get]
func (h *PartnerHandler) CommissionReport(c *gin.Context) {
	if !h.ownPartner(c) {
		return
	}
	w, err := pagination.ParseWindow(c, time.Now().UTC(), commissionWindow)
	if err != nil {
		badRequest(c, err)
		return
	}

	report, err := h.partnerService.CommissionReport(c.Request.Context(), c.Param("id"), service.CommissionPeriod{From: w.From, To: w.To})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// RequestPayout opens a commission payout approval for a period
// @Summary      Request commission payout
// @Tags         partners
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                    true  "Partner ID"
// @Param        body  body      service.CommissionPeriod  true  "Period"
// @Success      201   {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      409   {object}  response.Response
// @Router       /api/partners/{id}/payouts [post]
func (h *PartnerHandler) RequestPayout(c *gin.Context) {
	if !h.ownPartner(c) {
		return
	}
	var period service.CommissionPeriod
	if err := c.ShouldBindJSON(&period); err != nil {
		badRequest(c, err)
		return
	}

	approval, err := h.partnerService.RequestPayout(c.Request.Context(), c.Param("id"), period, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, approval))
}

// ListPayouts lists payouts already granted to a partner
// @Summary      List commission payouts
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Partner ID"
// @Success      200  {object}  response.Response{data=[]service.CommissionPayoutResponse}
// @Router       /api/partners/{id}/payouts [get]
func (h *PartnerHandler) ListPayouts(c *gin.Context) {
	if !h.ownPartner(c) {
		return
	}
	payouts, err := h.partnerService.ListPayouts(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payouts))
}

// ownPartner restricts partner users to their own :id
func (h *PartnerHandler) ownPartner(c *gin.Context) bool {
	sc, ok := scopeOf(c)
	if !ok {
		return false
	}
	if sc.ClientID != "" || (sc.PartnerID != "" && sc.PartnerID != c.Param("id")) {
		forbiddenScope(c)
		return false
	}
	return true
}
