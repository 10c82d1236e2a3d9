package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"strategyavs/internal/repository"
)

// V1AttestationHandler exposes read-only attestation lookups.
type V1AttestationHandler struct {
	Repo repository.Repository
}

func (h *V1AttestationHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/attestations")
	group.GET("/:hash", h.listByHash)
	group.GET("/:hash/:operator", h.byHashAndOperator)
}

func (h *V1AttestationHandler) listByHash(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	items, err := h.Repo.ListAttestationsByStrategyHash(c.Request.Context(), hash)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *V1AttestationHandler) byHashAndOperator(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	item, err := h.Repo.GetAttestationByHashAndOperator(c.Request.Context(), c.Param("hash"), c.Param("operator"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "attestation not found", nil)
		return
	}
	Ok(c, item, nil)
}
