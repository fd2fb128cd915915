package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arunlm/medilab-backend/internal/http/response"
	"github.com/arunlm/medilab-backend/internal/ingest"
)

type HealthHandler struct {
	svc *ingest.Service
}

func NewHealthHandler(svc *ingest.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response.RespondOK(c, http.StatusOK, h.svc.HealthInfo(c.Request.Context()))
}
