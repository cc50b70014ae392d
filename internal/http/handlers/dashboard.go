package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prodpulse/prodpulse-backend/internal/http/response"
	"github.com/prodpulse/prodpulse-backend/internal/services"
)

var errDimensionValue = errors.New("dimension and value are required")

type DashboardHandler struct {
	dashboard services.DashboardService
}

func NewDashboardHandler(dashboard services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// splitCSV turns "a, b,c" into ["a","b","c"]; empty input yields nil.
func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// GET /api/dashboard
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	f := services.Filters{
		Month:      c.Query("month"),
		Customers:  splitCSV(c.Query("customers")),
		Categories: splitCSV(c.Query("categories")),
		Statuses:   splitCSV(c.Query("statuses")),
		Products:   splitCSV(c.Query("products")),
	}
	response.RespondOK(c, h.dashboard.Summary(c.Request.Context(), f))
}

// GET /api/dashboard/decomposition
func (h *DashboardHandler) GetDecomposition(c *gin.Context) {
	result, err := h.dashboard.Decomposition(c.Request.Context(), c.Query("month"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "decomposition_failed", err)
		return
	}
	response.RespondOK(c, result)
}

// GET /api/dashboard/comparison
func (h *DashboardHandler) GetComparison(c *gin.Context) {
	months, _ := strconv.Atoi(c.DefaultQuery("months", "6"))
	result, err := h.dashboard.Comparison(c.Request.Context(), months)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "comparison_failed", err)
		return
	}
	response.RespondOK(c, result)
}

// GET /api/dashboard/failure-trend
func (h *DashboardHandler) GetFailureTrend(c *gin.Context) {
	months, _ := strconv.Atoi(c.DefaultQuery("months", "6"))
	result, err := h.dashboard.FailureTrend(c.Request.Context(), months)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "failure_trend_failed", err)
		return
	}
	response.RespondOK(c, result)
}

// GET /api/dashboard/drilldown
func (h *DashboardHandler) GetDrilldown(c *gin.Context) {
	dimension := c.Query("dimension")
	value := c.Query("value")
	if dimension == "" || value == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_params", errDimensionValue)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	result, err := h.dashboard.Drilldown(c.Request.Context(), dimension, value, c.Query("month"), page, pageSize)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "drilldown_failed", err)
		return
	}
	response.RespondOK(c, result)
}
