package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arunlm/medilab-backend/internal/http/response"
	"github.com/arunlm/medilab-backend/internal/ingest"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
)

type DocumentHandler struct {
	log *logger.Logger
	svc *ingest.Service
}

func NewDocumentHandler(log *logger.Logger, svc *ingest.Service) *DocumentHandler {
	return &DocumentHandler{
		log: log.With("handler", "DocumentHandler"),
		svc: svc,
	}
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	documentID := strings.TrimSpace(c.Param("id"))
	includePayload := parseBool(c.Query("include_base64"))

	rec, err := h.svc.GetDocument(c.Request.Context(), documentID, includePayload)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"document": rec})
}

func (h *DocumentHandler) ListPatientDocuments(c *gin.Context) {
	patientID := strings.TrimSpace(c.Param("patient_id"))
	limit := parseIntDefault(c.Query("limit"), 0)
	offset := parseIntDefault(c.Query("offset"), 0)

	listing, err := h.svc.ListPatientDocuments(c.Request.Context(), patientID, limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, listing)
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func parseIntDefault(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}
