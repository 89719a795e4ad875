package controller

import (
	"context"
	"strings"

	"codeprep/internal/stats/service"
	"codeprep/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// StatsReader reads per-user solve counters.
type StatsReader interface {
	GetStats(ctx context.Context, userID string) (service.UserStats, error)
}

// StatsController serves user stats.
type StatsController struct {
	stats StatsReader
}

func NewStatsController(stats StatsReader) *StatsController {
	return &StatsController{stats: stats}
}

func (h *StatsController) RegisterRoutes(r gin.IRouter) {
	r.GET("/users/:id/stats", h.Get)
}

// Get returns the stats of one user.
func (h *StatsController) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.BadRequest(c, "Invalid user id")
		return
	}
	stats, err := h.stats.GetStats(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}
