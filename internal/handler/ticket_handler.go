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

type TicketHandler struct {
	ticketService service.TicketService
	clientService service.ClientService
	auth          *middleware.Authenticator
}

func NewTicketHandler(ticketService service.TicketService, clientService service.ClientService, auth *middleware.Authenticator) *TicketHandler {
	return &TicketHandler{ticketService: ticketService, clientService: clientService, auth: auth}
}

func (h *TicketHandler) RegisterRoutes(router *gin.RouterGroup) {
	tickets := router.Group("/tickets")
	{
		tickets.GET("", h.auth.RequirePermission(model.PermTicketsRead), h.ListTickets)
		tickets.GET("/:id", h.auth.RequirePermission(model.PermTicketsRead), h.GetTicket)
		tickets.POST("", h.auth.RequirePermission(model.PermTicketsWrite), h.CreateTicket)
		tickets.POST("/:id/messages", h.auth.RequirePermission(model.PermTicketsWrite), h.AddMessage)
		tickets.PUT("/:id/status", h.auth.RequirePermission(model.PermTicketsManage), h.ChangeStatus)
		tickets.PUT("/:id/assign", h.auth.RequirePermission(model.PermTicketsManage), h.AssignTicket)
	}
}

// @Summary      Open ticket
// @Tags         tickets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.CreateTicketRequest  true  "Ticket"
// @Success      201   {object}  response.Response{data=service.TicketResponse}
// @Router       /api/tickets [post]
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	var req service.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	// client users always open tickets for themselves
	if sc.ClientID != "" {
		req.ClientID = sc.ClientID
	}
	if !requireClientAccess(c, h.clientService, req.ClientID) {
		return
	}

	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, ticket))
}

// ListTickets returns tickets; client users only see their own
// @Summary      List tickets
// @Tags         tickets
// @Security     BearerAuth
// @Produce      json
// @Param        status       query     string  false  "OPEN, IN_PROGRESS, RESOLVED or CLOSED"
// @Param        priority     query     string  false  "LOW, MEDIUM, HIGH or URGENT"
// @Param        client_id    query     string  false  "Client ID"
// @Param        assigned_to  query     string  false  "Assignee user ID"
// @Param        page         query     int     false  "Page number"
// @Param        limit        query     int     false  "Page size"
// @Success      200          {object}  response.Response{data=[]service.TicketResponse}
// @Router       /api/tickets [get]
func (h *TicketHandler) ListTickets(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	filter := service.TicketFilter{
		Status:     c.Query("status"),
		Priority:   c.Query("priority"),
		ClientID:   c.Query("client_id"),
		AssignedTo: c.Query("assigned_to"),
		Page:       p.Page,
		Limit:      p.Limit,
	}
	if sc.ClientID != "" {
		filter.ClientID = sc.ClientID
	}
	if sc.PartnerID != "" {
		if filter.ClientID == "" {
			forbiddenScope(c)
			return
		}
		if !requireClientAccess(c, h.clientService, filter.ClientID) {
			return
		}
	}

	tickets, total, err := h.ticketService.ListTickets(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, tickets, p.Page, p.Limit, total))
}

// GetTicket returns the ticket with its message thread
// @Summary      Get ticket
// @Tags         tickets
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Ticket ID"
// @Success      200  {object}  response.Response{data=service.TicketResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/tickets/{id} [get]
func (h *TicketHandler) GetTicket(c *gin.Context) {
	ticket, ok := h.loadVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ticket))
}

// AddMessage appends to the thread; a resolved ticket goes back to OPEN
// @Summary      Add ticket message
// @Tags         tickets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                           true  "Ticket ID"
// @Param        body  body      service.AddTicketMessageRequest  true  "Message"
// @Success      200   {object}  response.Response{data=service.TicketResponse}
// @Failure      409   {object}  response.Response
// @Router       /api/tickets/{id}/messages [post]
func (h *TicketHandler) AddMessage(c *gin.Context) {
	var req service.AddTicketMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, ok := h.loadVisible(c); !ok {
		return
	}

	ticket, err := h.ticketService.AddMessage(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ticket))
}

// @Summary      Change ticket status
// @Tags         tickets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                             true  "Ticket ID"
// @Param        body  body      service.ChangeTicketStatusRequest  true  "Status"
// @Success      200   {object}  response.Response{data=service.TicketResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/tickets/{id}/status [put]
func (h *TicketHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ticket, err := h.ticketService.ChangeStatus(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ticket))
}

// @Summary      Assign ticket
// @Tags         tickets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                       true  "Ticket ID"
// @Param        body  body      service.AssignTicketRequest  true  "Assignee"
// @Success      200   {object}  response.Response{data=service.TicketResponse}
// @Router       /api/tickets/{id}/assign [put]
func (h *TicketHandler) AssignTicket(c *gin.Context) {
	var req service.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ticket, err := h.ticketService.AssignTicket(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ticket))
}

func (h *TicketHandler) loadVisible(c *gin.Context) (*service.TicketResponse, bool) {
	ticket, err := h.ticketService.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !requireClientAccess(c, h.clientService, ticket.ClientID) {
		return nil, false
	}
	return ticket, true
}
