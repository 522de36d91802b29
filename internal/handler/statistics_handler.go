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

const statisticsWindow = 30 * 24 * time.Hour

type StatisticsHandler struct {
	statsService service.StatisticsService
	auth         *middleware.Authenticator
}

func NewStatisticsHandler(statsService service.StatisticsService, auth *middleware.Authenticator) *StatisticsHandler {
	return &StatisticsHandler{statsService: statsService, auth: auth}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	stats := router.Group("/statistics")
	stats.Use(h.auth.RequirePermission(model.PermStatisticsRead))
	{
		stats.GET("", h.GetStatistics)
		stats.GET("/sales-series", h.GetSalesSeries)
	}
}

// GetStatistics returns the dashboard aggregates for a date range
// @Summary      Dashboard statistics
// @Tags         statistics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start (RFC3339 or YYYY-MM-DD), default 30 days ago"
// @Param        to    query     string  false  "End (RFC3339 or YYYY-MM-DD), default now"
// @Success      200   {object}  response.Response{data=model.DashboardStatistics}
// @Failure      400   {object}  response.Response
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	w, err := pagination.ParseWindow(c, time.Now().UTC(), statisticsWindow)
	if err != nil {
		badRequest(c, err)
		return
	}

	stats, err := h.statsService.GetStatistics(c.Request.Context(), w.From, w.To)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// GetSalesSeries returns sales bucketed by day, week or month
// @Summary      Sales time series
// @Tags         statistics
// @Security     BearerAuth
// @Produce      json
// @Param        group_by  query     string  false  "day, week or month"
// @Param        from      query     string  false  "Start"
// @Param        to        query     string  false  "End"
// @Success      200       {object}  response.Response{data=[]model.SalesPeriod}
// @Router       /api/statistics/sales-series [get]
func (h *StatisticsHandler) GetSalesSeries(c *gin.Context) {
	w, err := pagination.ParseWindow(c, time.Now().UTC(), statisticsWindow)
	if err != nil {
		badRequest(c, err)
		return
	}

	series, err := h.statsService.GetSalesSeries(c.Request.Context(), c.Query("group_by"), w.From, w.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, series))
}
