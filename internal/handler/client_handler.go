package handler

import (
	"net/http"
	"strconv"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	clientService service.ClientService
	auth          *middleware.Authenticator
}

func NewClientHandler(clientService service.ClientService, auth *middleware.Authenticator) *ClientHandler {
	return &ClientHandler{clientService: clientService, auth: auth}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/clients")
	{
		clients.GET("", h.auth.RequirePermission(model.PermClientsRead), h.ListClients)
		clients.GET("/:id", h.auth.RequirePermission(model.PermClientsRead), h.GetClient)
		clients.POST("", h.auth.RequirePermission(model.PermClientsWrite), h.CreateClient)
		clients.PUT("/:id", h.auth.RequirePermission(model.PermClientsWrite), h.UpdateClient)
		clients.DELETE("/:id", h.auth.RequirePermission(model.PermClientsWrite), h.DeleteClient)
	}
}

// ListClients returns paginated clients. Partner users only see their own clients.
// @Summary      List clients
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        search      query     string  false  "Search by name, document or email"
// @Param        partner_id  query     string  false  "Filter by partner"
// @Param        is_active   query     bool    false  "Filter by active flag"
// @Param        page        query     int     false  "Page number"
// @Param        limit       query     int     false  "Page size"
// @Success      200         {object}  response.Response{data=[]service.ClientResponse}
// @Router       /api/clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	if sc.ClientID != "" {
		client, err := h.clientService.GetClient(c.Request.Context(), sc.ClientID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, []service.ClientResponse{*client}, 1, p.Limit, 1))
		return
	}

	filter := service.ClientFilter{
		Search:    c.Query("search"),
		PartnerID: c.Query("partner_id"),
		Page:      p.Page,
		Limit:     p.Limit,
	}
	if sc.PartnerID != "" {
		filter.PartnerID = sc.PartnerID
	}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.IsActive = &active
	}

	clients, total, err := h.clientService.ListClients(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, clients, p.Page, p.Limit, total))
}

// GetClient returns one client
// @Summary      Get client
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	client, err := h.clientService.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !sc.allowsClient(client) {
		forbiddenScope(c)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// CreateClient registers a client
// @Summary      Create client
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.CreateClientRequest  true  "Client"
// @Success      201   {object}  response.Response{data=service.ClientResponse}
// @Failure      400   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	client, err := h.clientService.CreateClient(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// UpdateClient replaces a client's details
// @Summary      Update client
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                       true  "Client ID"
// @Param        body  body      service.UpdateClientRequest  true  "Client"
// @Success      200   {object}  response.Response{data=service.ClientResponse}
// @Router       /api/clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req service.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	client, err := h.clientService.UpdateClient(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// DeleteClient removes a client together with its fee-block association and transfers
// @Summary      Delete client
// @Tags         clients
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Router       /api/clients/{id} [delete]
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clientService.DeleteClient(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Client deleted successfully"}))
}
