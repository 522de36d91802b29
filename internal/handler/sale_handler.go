package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SaleHandler struct {
	saleService   service.SaleService
	clientService service.ClientService
	auth          *middleware.Authenticator
}

func NewSaleHandler(saleService service.SaleService, clientService service.ClientService, auth *middleware.Authenticator) *SaleHandler {
	return &SaleHandler{saleService: saleService, clientService: clientService, auth: auth}
}

func (h *SaleHandler) RegisterRoutes(router *gin.RouterGroup) {
	sales := router.Group("/sales")
	{
		sales.GET("", h.auth.RequirePermission(model.PermSalesRead), h.ListSales)
		sales.GET("/export", h.auth.RequirePermission(model.PermSalesExport), h.ExportSales)
		sales.GET("/:id", h.auth.RequirePermission(model.PermSalesRead), h.GetSale)
		sales.POST("", h.auth.RequirePermission(model.PermSalesWrite), h.RecordSale)
	}
}

// RecordSale prices a sale with the client's effective fee block
// @Summary      Record sale
// @Tags         sales
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.RecordSaleRequest  true  "Sale"
// @Success      201   {object}  response.Response{data=service.SaleResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/sales [post]
func (h *SaleHandler) RecordSale(c *gin.Context) {
	var req service.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !requireClientAccess(c, h.clientService, req.ClientID) {
		return
	}

	sale, err := h.saleService.RecordSale(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, sale))
}

// ListSales returns sales filtered by client, partner, method and date range
// @Summary      List sales
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        client_id       query     string  false  "Client ID"
// @Param        partner_id      query     string  false  "Partner ID"
// @Param        payment_method  query     string  false  "CREDIT, DEBIT or PIX"
// @Param        from            query     string  false  "Start (RFC3339 or YYYY-MM-DD)"
// @Param        to              query     string  false  "End (RFC3339 or YYYY-MM-DD)"
// @Param        page            query     int     false  "Page number"
// @Param        limit           query     int     false  "Page size"
// @Success      200             {object}  response.Response{data=[]service.SaleResponse}
// @Router       /api/sales [get]
func (h *SaleHandler) ListSales(c *gin.Context) {
	filter, ok := h.filterFrom(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	filter.Page, filter.Limit = p.Page, p.Limit

	sales, total, err := h.saleService.ListSales(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, sales, p.Page, p.Limit, total))
}

// @Summary      Get sale
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sale ID"
// @Success      200  {object}  response.Response{data=service.SaleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/sales/{id} [get]
func (h *SaleHandler) GetSale(c *gin.Context) {
	sale, err := h.saleService.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !requireClientAccess(c, h.clientService, sale.ClientID) {
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// ExportSales downloads the filtered sales as an xlsx workbook
// @Summary      Export sales
// @Tags         sales
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        client_id       query     string  false  "Client ID"
// @Param        partner_id      query     string  false  "Partner ID"
// @Param        payment_method  query     string  false  "CREDIT, DEBIT or PIX"
// @Param        from            query     string  false  "Start"
// @Param        to              query     string  false  "End"
// @Success      200             {file}    binary
// @Router       /api/sales/export [get]
func (h *SaleHandler) ExportSales(c *gin.Context) {
	filter, ok := h.filterFrom(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.saleService.ExportSales(c.Request.Context(), filter, &buf); err != nil {
		writeError(c, err)
		return
	}

	filename := fmt.Sprintf("sales_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// filterFrom builds the sale filter from the query and pins it to the caller's scope
func (h *SaleHandler) filterFrom(c *gin.Context) (service.SaleFilter, bool) {
	sc, ok := scopeOf(c)
	if !ok {
		return service.SaleFilter{}, false
	}
	from, to, err := pagination.OptionalWindow(c)
	if err != nil {
		badRequest(c, err)
		return service.SaleFilter{}, false
	}

	filter := service.SaleFilter{
		ClientID:      c.Query("client_id"),
		PartnerID:     c.Query("partner_id"),
		PaymentMethod: c.Query("payment_method"),
		From:          from,
		To:            to,
	}
	switch {
	case sc.ClientID != "":
		filter.ClientID = sc.ClientID
		filter.PartnerID = ""
	case sc.PartnerID != "":
		filter.PartnerID = sc.PartnerID
	}
	return filter, true
}
