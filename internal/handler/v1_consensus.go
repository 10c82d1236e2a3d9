package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"strategyavs/internal/consensus"
	"strategyavs/internal/models"
	"strategyavs/internal/repository"
	"strategyavs/internal/roster"
)

// V1ConsensusHandler exposes vote intake and consensus reads for the
// aggregator service.
type V1ConsensusHandler struct {
	Repo       repository.Repository
	Aggregator *consensus.Aggregator
	Roster     roster.Provider
}

func (h *V1ConsensusHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.POST("/votes", h.submitVote)
	group.GET("/consensus/:hash", h.consensusByHash)
	group.GET("/tasks", h.listTasks)
	group.GET("/tasks/:id", h.taskByID)
}

type submitVoteRequest struct {
	TaskID       string  `json:"task_id" binding:"required"`
	StrategyHash string  `json:"strategy_hash" binding:"required"`
	OperatorID   string  `json:"operator_id" binding:"required"`
	Decision     string  `json:"decision" binding:"required"`
	Confidence   float64 `json:"confidence"`
}

func (h *V1ConsensusHandler) submitVote(c *gin.Context) {
	if h.Aggregator == nil || h.Roster == nil {
		Error(c, http.StatusInternalServerError, "aggregator unavailable", nil)
		return
	}
	var req submitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request: "+err.Error(), nil)
		return
	}
	if req.Confidence < 0 || req.Confidence > 100 {
		Error(c, http.StatusBadRequest, "confidence must be in [0,100]", nil)
		return
	}
	ctx := c.Request.Context()

	operators, err := h.Roster.Operators(ctx)
	if err != nil {
		Error(c, http.StatusServiceUnavailable, "roster unavailable: "+err.Error(), nil)
		return
	}
	if !rosterContains(operators, req.OperatorID) {
		Error(c, http.StatusForbidden, "operator not in roster", nil)
		return
	}

	record, err := h.Aggregator.SubmitVote(ctx, req.TaskID, req.StrategyHash, len(operators), models.OperatorVote{
		OperatorID: req.OperatorID,
		Decision:   strings.ToLower(strings.TrimSpace(req.Decision)),
		Confidence: req.Confidence,
	})
	if err != nil {
		if errors.Is(err, consensus.ErrUnknownDecision) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, record, map[string]any{"operator_count": len(operators)})
}

func (h *V1ConsensusHandler) consensusByHash(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	record, err := h.Repo.GetValidationRecordByStrategyHash(c.Request.Context(), hash)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if record == nil {
		Error(c, http.StatusNotFound, "no consensus record for strategy", nil)
		return
	}
	Ok(c, record, nil)
}

func (h *V1ConsensusHandler) taskByID(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	record, err := h.Repo.GetValidationRecordByTaskID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if record == nil {
		Error(c, http.StatusNotFound, "task not found", nil)
		return
	}
	Ok(c, record, nil)
}

func (h *V1ConsensusHandler) listTasks(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	ctx := c.Request.Context()
	params := repository.ListValidationRecordsParams{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		params.Status = &status
	}
	records, err := h.Repo.ListValidationRecords(ctx, params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountValidationRecords(ctx, params.Status)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, records, metaPage(total, params.Limit, params.Offset))
}

func rosterContains(operators []models.OperatorInfo, operatorID string) bool {
	for _, op := range operators {
		if op.ID == operatorID {
			return true
		}
	}
	return false
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
