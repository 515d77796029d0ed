package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/http/response"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/services"
)

// Inbound webhook bodies are read whole for signature verification; cap
// them well above any real event payload.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	log    *logger.Logger
	ingest services.IngestService
}

func NewWebhookHandler(log *logger.Logger, ingest services.IngestService) *WebhookHandler {
	return &WebhookHandler{
		log:    log.With("Handler", "WebhookHandler"),
		ingest: ingest,
	}
}

// Receive accepts one provider delivery. Slack's URL verification
// handshake is answered inline; everything else goes through the adapter.
func (h *WebhookHandler) Receive(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("source_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	// Slack's subscription handshake arrives unsigned by the same scheme
	// and expects the challenge echoed back.
	var probe struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if json.Unmarshal(body, &probe) == nil && probe.Type == "url_verification" {
		response.RespondOK(c, gin.H{"challenge": probe.Challenge})
		return
	}

	accepted, err := h.ingest.HandleInbound(c.Request.Context(), sourceID, c.Request.Header, body)
	if err != nil {
		// Failed authentication must not leak which part failed.
		if errorsx.IsValidation(err) {
			h.log.Warn("Webhook delivery dropped", "source_id", sourceID.String(), "error", err.Error())
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errorsx.ErrUnauthorized)
			return
		}
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"accepted": accepted})
}
