package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"strategyavs/internal/repository"
)

// V1RunHandler exposes the operator's pipeline journal.
type V1RunHandler struct {
	Repo repository.Repository
}

func (h *V1RunHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/runs", h.listRuns)
}

func (h *V1RunHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListPipelineRunsParams{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		params.Status = &status
	}
	if hash := strings.TrimSpace(c.Query("strategy_hash")); hash != "" {
		params.StrategyHash = &hash
	}
	runs, err := h.Repo.ListPipelineRuns(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, runs, metaPage(int64(len(runs)), params.Limit, params.Offset))
}
