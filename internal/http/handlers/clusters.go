package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/http/response"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/services"
)

type ClusterHandler struct {
	log      *logger.Logger
	clusters services.ClusterService
}

func NewClusterHandler(log *logger.Logger, clusters services.ClusterService) *ClusterHandler {
	return &ClusterHandler{
		log:      log.With("Handler", "ClusterHandler"),
		clusters: clusters,
	}
}

func (h *ClusterHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	cluster, err := h.clusters.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, cluster)
}

func (h *ClusterHandler) ListByProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	clusters, err := h.clusters.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"clusters": clusters})
}

type mergeClustersRequest struct {
	SourceID uuid.UUID `json:"source_id" binding:"required"`
}

// Merge absorbs the cluster named in the body into the one in the path.
func (h *ClusterHandler) Merge(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	var req mergeClustersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	merged, err := h.clusters.Merge(c.Request.Context(), targetID, req.SourceID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, merged)
}

func (h *ClusterHandler) Dismiss(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	if err := h.clusters.Dismiss(c.Request.Context(), id); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"dismissed": true})
}

func (h *ClusterHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	if err := h.clusters.Delete(c.Request.Context(), id); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}
