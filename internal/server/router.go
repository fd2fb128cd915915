package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/arunlm/medilab-backend/internal/http/handlers"
	"github.com/arunlm/medilab-backend/internal/http/middleware"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	OCRHandler      *handlers.OCRHandler
	DocumentHandler *handlers.DocumentHandler
	HealthHandler   *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("medilab-backend"))
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.CORS())
	if cfg.Log != nil {
		r.Use(middleware.RequestLog(cfg.Log))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	if cfg.OCRHandler != nil {
		r.POST("/ocr/upload", cfg.OCRHandler.Upload)
	}

	if cfg.DocumentHandler != nil {
		r.GET("/documents/:id", cfg.DocumentHandler.GetDocument)
		r.GET("/patients/:patient_id/documents", cfg.DocumentHandler.ListPatientDocuments)
	}

	return r
}
