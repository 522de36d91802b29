package handler

import (
	"net/http"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaxBlockHandler struct {
	blockService      service.TaxBlockService
	assignmentService service.TaxBlockAssignmentService
	clientService     service.ClientService
	auth              *middleware.Authenticator
}

func NewTaxBlockHandler(blocks service.TaxBlockService, assignments service.TaxBlockAssignmentService, clients service.ClientService, auth *middleware.Authenticator) *TaxBlockHandler {
	return &TaxBlockHandler{blockService: blocks, assignmentService: assignments, clientService: clients, auth: auth}
}

func (h *TaxBlockHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.auth.RequirePermission(model.PermTaxBlocksRead)
	write := h.auth.RequirePermission(model.PermTaxBlocksWrite)
	assign := h.auth.RequirePermission(model.PermTaxBlocksAssign)

	blocks := router.Group("/tax-blocks")
	{
		blocks.GET("", read, h.ListBlocks)
		blocks.GET("/:id", read, h.GetBlock)
		blocks.POST("", write, h.CreateBlock)
		blocks.PUT("/:id", write, h.UpdateBlock)
		blocks.DELETE("/:id", write, h.DeleteBlock)
		blocks.PUT("/:id/rates", write, h.UpsertRates)
		blocks.DELETE("/:id/rates/:rateId", write, h.DeleteRate)
		blocks.GET("/:id/clients", read, h.ListBlockClients)
	}

	clientBlock := router.Group("/clients/:id/tax-block")
	{
		clientBlock.GET("", read, h.GetClientBlock)
		clientBlock.POST("", assign, h.AssignTaxBlock)
		clientBlock.POST("/transfer", assign, h.TransferTaxBlock)
		clientBlock.DELETE("", assign, h.RemoveAssociation)
	}

	transfers := router.Group("/tax-block-transfers")
	{
		transfers.GET("", read, h.ListTransfers)
		transfers.POST("/:id/cancel", assign, h.CancelTransfer)
		transfers.POST("/apply", assign, h.ApplyDueTransfers)
	}
}

// ListBlocks returns fee blocks with their rates
// @Summary      List fee blocks
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "Search by name"
// @Param        page    query     int     false  "Page number"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Response{data=[]service.TaxBlockResponse}
// @Router       /api/tax-blocks [get]
func (h *TaxBlockHandler) ListBlocks(c *gin.Context) {
	p := pagination.Parse(c)
	blocks, total, err := h.blockService.ListBlocks(c.Request.Context(), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, blocks, p.Page, p.Limit, total))
}

// GetBlock returns a block and its rate table
// @Summary      Get fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Block ID"
// @Success      200  {object}  response.Response{data=service.TaxBlockResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/tax-blocks/{id} [get]
func (h *TaxBlockHandler) GetBlock(c *gin.Context) {
	block, err := h.blockService.GetBlock(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, block))
}

// @Summary      Create fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.CreateTaxBlockRequest  true  "Block"
// @Success      201   {object}  response.Response{data=service.TaxBlockResponse}
// @Failure      409   {object}  response.Response
// @Router       /api/tax-blocks [post]
func (h *TaxBlockHandler) CreateBlock(c *gin.Context) {
	var req service.CreateTaxBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	block, err := h.blockService.CreateBlock(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, block))
}

// @Summary      Update fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                         true  "Block ID"
// @Param        body  body      service.UpdateTaxBlockRequest  true  "Block"
// @Success      200   {object}  response.Response{data=service.TaxBlockResponse}
// @Router       /api/tax-blocks/{id} [put]
func (h *TaxBlockHandler) UpdateBlock(c *gin.Context) {
	var req service.UpdateTaxBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	block, err := h.blockService.UpdateBlock(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, block))
}

// DeleteBlock deletes a block with its rates, associations and transfers
// @Summary      Delete fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Param        id   path      string  true  "Block ID"
// @Success      200  {object}  response.Response
// @Router       /api/tax-blocks/{id} [delete]
func (h *TaxBlockHandler) DeleteBlock(c *gin.Context) {
	if err := h.blockService.DeleteBlock(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Tax block deleted successfully"}))
}

// UpsertRates replaces the block's rate table
// @Summary      Replace block rates
// @Tags         tax-blocks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                         true  "Block ID"
// @Param        body  body      service.UpsertTaxRatesRequest  true  "Rates"
// @Success      200   {object}  response.Response{data=service.TaxBlockResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/tax-blocks/{id}/rates [put]
func (h *TaxBlockHandler) UpsertRates(c *gin.Context) {
	var req service.UpsertTaxRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	block, err := h.blockService.UpsertRates(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, block))
}

// @Summary      Delete a rate
// @Tags         tax-blocks
// @Security     BearerAuth
// @Param        id      path      string  true  "Block ID"
// @Param        rateId  path      string  true  "Rate ID"
// @Success      200     {object}  response.Response
// @Router       /api/tax-blocks/{id}/rates/{rateId} [delete]
func (h *TaxBlockHandler) DeleteRate(c *gin.Context) {
	if err := h.blockService.DeleteRate(c.Request.Context(), c.Param("id"), c.Param("rateId"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Tax rate deleted successfully"}))
}

// @Summary      Clients in a block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Block ID"
// @Success      200  {object}  response.Response{data=[]service.ClientResponse}
// @Router       /api/tax-blocks/{id}/clients [get]
func (h *TaxBlockHandler) ListBlockClients(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	clients, err := h.blockService.ListBlockClients(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if sc.restricted() {
		visible := make([]service.ClientResponse, 0, len(clients))
		for i := range clients {
			if sc.allowsClient(&clients[i]) {
				visible = append(visible, clients[i])
			}
		}
		clients = visible
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, clients))
}

// GetClientBlock returns the client's current block and any pending transfer
// @Summary      Client fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientBlockResponse}
// @Router       /api/clients/{id}/tax-block [get]
func (h *TaxBlockHandler) GetClientBlock(c *gin.Context) {
	if !requireClientAccess(c, h.clientService, c.Param("id")) {
		return
	}
	current, err := h.assignmentService.GetClientBlock(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, current))
}

// AssignTaxBlock assigns a block to a client. When the client already sits in another
// block and no cutoff_at is given, the response is 409 with the current block in data.
// @Summary      Assign fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                         true  "Client ID"
// @Param        body  body      service.AssignTaxBlockRequest  true  "Assignment"
// @Success      200   {object}  response.Response{data=service.AssignmentResult}
// @Failure      409   {object}  response.Response
// @Router       /api/clients/{id}/tax-block [post]
func (h *TaxBlockHandler) AssignTaxBlock(c *gin.Context) {
	var req service.AssignTaxBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.assignmentService.AssignTaxBlock(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// TransferTaxBlock moves a client to another block at a cutoff
// @Summary      Transfer fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                           true  "Client ID"
// @Param        body  body      service.TransferTaxBlockRequest  true  "Transfer"
// @Success      200   {object}  response.Response{data=service.AssignmentResult}
// @Failure      409   {object}  response.Response
// @Router       /api/clients/{id}/tax-block/transfer [post]
func (h *TaxBlockHandler) TransferTaxBlock(c *gin.Context) {
	var req service.TransferTaxBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.assignmentService.TransferTaxBlock(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// @Summary      Remove client fee block
// @Tags         tax-blocks
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Router       /api/clients/{id}/tax-block [delete]
func (h *TaxBlockHandler) RemoveAssociation(c *gin.Context) {
	if err := h.assignmentService.RemoveAssociation(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Tax block association removed"}))
}

// @Summary      List transfers
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Param        client_id  query     string  false  "Client ID"
// @Param        status     query     string  false  "PENDING, APPLIED or CANCELLED"
// @Param        page       query     int     false  "Page number"
// @Param        limit      query     int     false  "Page size"
// @Success      200        {object}  response.Response{data=[]service.TransferResponse}
// @Router       /api/tax-block-transfers [get]
func (h *TaxBlockHandler) ListTransfers(c *gin.Context) {
	sc, ok := scopeOf(c)
	if !ok {
		return
	}
	clientID := c.Query("client_id")
	if sc.restricted() {
		// scoped users must name one of their clients
		if clientID == "" {
			clientID = sc.ClientID
		}
		if clientID == "" {
			forbiddenScope(c)
			return
		}
		if !requireClientAccess(c, h.clientService, clientID) {
			return
		}
	}

	p := pagination.Parse(c)
	transfers, total, err := h.assignmentService.ListTransfers(c.Request.Context(), service.TransferFilter{
		ClientID: clientID,
		Status:   c.Query("status"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, transfers, p.Page, p.Limit, total))
}

// @Summary      Cancel a pending transfer
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Transfer ID"
// @Success      200  {object}  response.Response{data=service.TransferResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/tax-block-transfers/{id}/cancel [post]
func (h *TaxBlockHandler) CancelTransfer(c *gin.Context) {
	transfer, err := h.assignmentService.CancelTransfer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, transfer))
}

// ApplyDueTransfers runs the transfer worker once, on demand
// @Summary      Apply due transfers
// @Tags         tax-blocks
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/tax-block-transfers/apply [post]
func (h *TaxBlockHandler) ApplyDueTransfers(c *gin.Context) {
	applied, err := h.assignmentService.ApplyDueTransfers(c.Request.Context(), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"applied": applied}))
}
