package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arunlm/medilab-backend/internal/extract"
	"github.com/arunlm/medilab-backend/internal/http/handlers"
	"github.com/arunlm/medilab-backend/internal/ingest"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/server"
	"github.com/arunlm/medilab-backend/internal/store"
	"github.com/arunlm/medilab-backend/internal/types"
)

type fakeStrategy struct {
	name      string
	extractFn func(ctx context.Context, in extract.Input) ([]types.OCRRegion, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(ctx context.Context, in extract.Input) ([]types.OCRRegion, error) {
	return f.extractFn(ctx, in)
}

func testRouter(t *testing.T, regions []types.OCRRegion) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	primary := &fakeStrategy{
		name: types.ProcessingMethodPrimaryOCR,
		extractFn: func(ctx context.Context, in extract.Input) ([]types.OCRRegion, error) {
			return regions, nil
		},
	}
	chain := extract.NewChain(log, primary, nil, time.Second, time.Second)
	svc := ingest.NewService(log, store.NewEphemeralStore(log), nil, chain)

	return server.NewRouter(server.RouterConfig{
		Log:             log,
		OCRHandler:      handlers.NewOCRHandler(log, svc, 32<<20),
		DocumentHandler: handlers.NewDocumentHandler(log, svc),
		HealthHandler:   handlers.NewHealthHandler(svc),
	})
}

func multipartUpload(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)}
	if contentType != "" {
		hdr["Content-Type"] = []string{contentType}
	}
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, r *gin.Engine, query, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, formType := multipartUpload(t, "file", filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/ocr/upload"+query, body)
	req.Header.Set("Content-Type", formType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return out
}

func TestUploadTextDocument(t *testing.T) {
	r := testRouter(t, nil)
	rec := doUpload(t, r, "?patient_id=mom@example.com", "notes.txt", "text/plain", []byte("BP 120/80"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["success"] != true {
		t.Fatalf("success: got=%v", body["success"])
	}
	if body["patient_id"] != "mom@example.com" {
		t.Fatalf("patient_id: got=%v", body["patient_id"])
	}
	if body["processing_type"] != types.ProcessingTypeTextStorage {
		t.Fatalf("processing_type: got=%v", body["processing_type"])
	}
	if body["storage_type"] != types.StorageTypeEphemeral {
		t.Fatalf("storage_type: got=%v", body["storage_type"])
	}
	if body["extracted_text"] != "BP 120/80" {
		t.Fatalf("extracted_text: got=%v", body["extracted_text"])
	}
	if body["document_id"] == "" || body["document_id"] == nil {
		t.Fatalf("document_id missing")
	}
}

func TestUploadImageRunsChain(t *testing.T) {
	regions := []types.OCRRegion{
		{Text: "Glucose 92", Confidence: 0.88, BBox: [][2]float64{{0, 0}, {40, 0}, {40, 8}, {0, 8}}},
	}
	r := testRouter(t, regions)
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x01}
	rec := doUpload(t, r, "", "scan.png", "image/png", png)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["is_image"] != true {
		t.Fatalf("is_image: got=%v", body["is_image"])
	}
	if body["processing_method"] != types.ProcessingMethodPrimaryOCR {
		t.Fatalf("processing_method: got=%v", body["processing_method"])
	}
	if body["text_count"] != float64(1) {
		t.Fatalf("text_count: got=%v", body["text_count"])
	}
	if body["patient_id"] != types.AnonymousPatientID {
		t.Fatalf("patient_id: want=%s got=%v", types.AnonymousPatientID, body["patient_id"])
	}
}

func TestUploadMissingFile(t *testing.T) {
	r := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/ocr/upload", bytes.NewBufferString(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", rec.Code)
	}
	body := decodeJSON(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("error envelope missing: %s", rec.Body.String())
	}
	if errObj["code"] != "missing_file" {
		t.Fatalf("code: got=%v", errObj["code"])
	}
}

func TestUploadUnclassifiable(t *testing.T) {
	r := testRouter(t, nil)
	rec := doUpload(t, r, "", "payload", "application/octet-stream", []byte{0x00, 0xFF, 0x00})

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status: want=415 got=%d (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestGetDocumentPayloadFlag(t *testing.T) {
	r := testRouter(t, nil)
	content := []byte("hemoglobin trend stable")
	up := decodeJSON(t, doUpload(t, r, "", "notes.txt", "text/plain", content))
	docID := up["document_id"].(string)

	// Default: payload omitted.
	req := httptest.NewRequest(http.MethodGet, "/documents/"+docID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	doc := decodeJSON(t, rec)["document"].(map[string]any)
	if _, ok := doc["base64_data"]; ok {
		t.Fatalf("base64_data leaked without include_base64")
	}

	// include_base64=true: payload round-trips.
	req = httptest.NewRequest(http.MethodGet, "/documents/"+docID+"?include_base64=true", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	doc = decodeJSON(t, rec)["document"].(map[string]any)
	raw, ok := doc["base64_data"].(string)
	if !ok || raw == "" {
		t.Fatalf("base64_data missing with include_base64=true")
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if string(decoded) != string(content) {
		t.Fatalf("payload round-trip: want=%q got=%q", content, decoded)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	r := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/documents/doc_0_0000", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
	if _, ok := decodeJSON(t, rec)["error"]; !ok {
		t.Fatalf("structured error missing: %s", rec.Body.String())
	}
}

func TestListPatientDocuments(t *testing.T) {
	r := testRouter(t, nil)
	for i := 0; i < 3; i++ {
		rec := doUpload(t, r, "?patient_id=p1", fmt.Sprintf("n%d.txt", i), "text/plain", []byte(fmt.Sprintf("note %d", i)))
		if rec.Code != http.StatusOK {
			t.Fatalf("upload %d: status=%d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/patients/p1/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}

	body := decodeJSON(t, rec)
	if body["patient_id"] != "p1" {
		t.Fatalf("patient_id: got=%v", body["patient_id"])
	}
	docs := body["documents"].([]any)
	if body["total_count"] != float64(len(docs)) || len(docs) != 3 {
		t.Fatalf("total_count: got=%v len=%d", body["total_count"], len(docs))
	}
	for _, d := range docs {
		if _, ok := d.(map[string]any)["base64_data"]; ok {
			t.Fatalf("listing leaked base64_data")
		}
	}
}

func TestListUnknownPatientIsEmptySuccess(t *testing.T) {
	r := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/patients/nobody/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["total_count"] != float64(0) {
		t.Fatalf("total_count: want=0 got=%v", body["total_count"])
	}
}

func TestHealthCheck(t *testing.T) {
	r := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("status field: got=%v", body["status"])
	}
	if body["storage_type"] != types.StorageTypeEphemeral {
		t.Fatalf("storage_type: got=%v", body["storage_type"])
	}
}
