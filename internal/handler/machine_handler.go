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

type MachineHandler struct {
	machineService service.MachineService
	clientService  service.ClientService
	auth           *middleware.Authenticator
}

func NewMachineHandler(machineService service.MachineService, clientService service.ClientService, auth *middleware.Authenticator) *MachineHandler {
	return &MachineHandler{machineService: machineService, clientService: clientService, auth: auth}
}

func (h *MachineHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermMachinesRead)
	write := h.auth.RequirePermission(model.PermMachinesWrite)

	machines := router.Group("/machines")
	{
		machines.GET("", read, h.ListMachines)
		machines.GET("/summary", read, h.StockSummary)
		machines.GET("/:id", read, h.GetMachine)
		machines.GET("/:id/movements", read, h.ListMovements)
		machines.POST("", write, h.CreateMachine)
		machines.PUT("/:id", write, h.UpdateMachine)
		machines.DELETE("/:id", write, h.DeleteMachine)
		machines.POST("/:id/move", write, h.MoveMachine)
	}
}

// ListMachines returns terminals with optional status and client filters
// @Summary      List machines
// @Tags         machines
// @Security     BearerAuth
// @Produce      json
// @Param        status     query     string  false  "IN_STOCK, IN_TRANSIT, INSTALLED, MAINTENANCE or DECOMMISSIONED"
// @Param        client_id  query     string  false  "Client ID"
// @Param        search     query     string  false  "Serial number or model"
// @Param        page       query     int     false  "Page number"
// @Param        limit      query     int     false  "Page size"
// @Success      200        {object}  response.Response{data=[]service.MachineResponse}
// @Router       /api/machines [get]
func (h *MachineHandler) ListMachines(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	filter := service.MachineFilter{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		Search:   c.Query("search"),
		Page:     p.Page,
		Limit:    p.Limit,
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

	machines, total, err := h.machineService.ListMachines(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, machines, p.Page, p.Limit, total))
}

// StockSummary counts machines per status
// @Summary      Machine stock summary
// @Tags         machines
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.MachineStatusCount}
// @Router       /api/machines/summary [get]
func (h *MachineHandler) StockSummary(c *gin.Context) {
	summary, err := h.machineService.StockSummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// @Summary      Get machine
// @Tags         machines
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response{data=service.MachineResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/machines/{id} [get]
func (h *MachineHandler) GetMachine(c *gin.Context) {
	machine, ok := h.loadVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, machine))
}

// @Summary      Machine movement history
// @Tags         machines
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response{data=[]service.MachineMovementResponse}
// @Router       /api/machines/{id}/movements [get]
func (h *MachineHandler) ListMovements(c *gin.Context) {
	if _, ok := h.loadVisible(c); !ok {
		return
	}
	movements, err := h.machineService.ListMovements(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, movements))
}

// @Summary      Register machine
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.CreateMachineRequest  true  "Machine"
// @Success      201   {object}  response.Response{data=service.MachineResponse}
// @Failure      409   {object}  response.Response
// @Router       /api/machines [post]
func (h *MachineHandler) CreateMachine(c *gin.Context) {
	var req service.CreateMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	machine, err := h.machineService.CreateMachine(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, machine))
}

// @Summary      Update machine
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                        true  "Machine ID"
// @Param        body  body      service.UpdateMachineRequest  true  "Machine"
// @Success      200   {object}  response.Response{data=service.MachineResponse}
// @Router       /api/machines/{id} [put]
func (h *MachineHandler) UpdateMachine(c *gin.Context) {
	var req service.UpdateMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	machine, err := h.machineService.UpdateMachine(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, machine))
}

// @Summary      Delete machine
// @Tags         machines
// @Security     BearerAuth
// @Param        id   path      string  true  "Machine ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/machines/{id} [delete]
func (h *MachineHandler) DeleteMachine(c *gin.Context) {
	if err := h.machineService.DeleteMachine(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Machine deleted successfully"}))
}

// MoveMachine changes a machine's logistic status and records the movement
// @Summary      Move machine
// @Tags         machines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                      true  "Machine ID"
// @Param        body  body      service.MoveMachineRequest  true  "Movement"
// @Success      200   {object}  response.Response{data=service.MachineResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/machines/{id}/move [post]
func (h *MachineHandler) MoveMachine(c *gin.Context) {
	var req service.MoveMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	machine, err := h.machineService.MoveMachine(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, machine))
}

// loadVisible fetches the machine and hides it from scoped users when it sits with another client
func (h *MachineHandler) loadVisible(c *gin.Context) (*service.MachineResponse, bool) {
	sc, ok := scopeOf(c)
	if !ok {
		return nil, false
	}
	machine, err := h.machineService.GetMachine(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if sc.restricted() {
		if machine.ClientID == "" {
			forbiddenScope(c)
			return nil, false
		}
		if !requireClientAccess(c, h.clientService, machine.ClientID) {
			return nil, false
		}
	}
	return machine, true
}
