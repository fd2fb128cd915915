package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arunlm/medilab-backend/internal/platform/ctxutil"
)

func TestAttachTraceContextGeneratesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())

	var got *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		got = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got == nil || got.TraceID == "" || got.RequestID == "" {
		t.Fatalf("trace data not attached: %+v", got)
	}
	if rec.Header().Get("X-Trace-Id") != got.TraceID {
		t.Fatalf("trace header: want=%s got=%s", got.TraceID, rec.Header().Get("X-Trace-Id"))
	}
	if rec.Header().Get("X-Request-Id") != got.RequestID {
		t.Fatalf("request header: want=%s got=%s", got.RequestID, rec.Header().Get("X-Request-Id"))
	}
}

func TestAttachTraceContextHonorsCallerIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-Id", "trace-abc")
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("X-Trace-Id") != "trace-abc" {
		t.Fatalf("caller trace id not honored: got=%s", rec.Header().Get("X-Trace-Id"))
	}
	if rec.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("caller request id not honored: got=%s", rec.Header().Get("X-Request-Id"))
	}
}
