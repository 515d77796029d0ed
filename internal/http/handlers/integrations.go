package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/http/response"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/services"
)

type IntegrationHandler struct {
	log    *logger.Logger
	ingest services.IngestService
}

func NewIntegrationHandler(log *logger.Logger, ingest services.IngestService) *IntegrationHandler {
	return &IntegrationHandler{
		log:    log.With("Handler", "IntegrationHandler"),
		ingest: ingest,
	}
}

type startSyncRequest struct {
	FullSync bool `json:"full_sync"`
}

// StartSync kicks off a paged history sync for a pull-based source. The
// sync itself runs in the background; this only schedules it.
func (h *IntegrationHandler) StartSync(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	var req startSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
			return
		}
	}
	if err := h.ingest.StartSync(c.Request.Context(), id, req.FullSync); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"started": true, "full_sync": req.FullSync})
}

func (h *IntegrationHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	status, err := h.ingest.Status(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, status)
}
