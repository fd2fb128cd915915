package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arunlm/medilab-backend/internal/http/response"
	"github.com/arunlm/medilab-backend/internal/ingest"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
)

type uploadResponse struct {
	Success          bool     `json:"success"`
	DocumentID       string   `json:"document_id"`
	PatientID        string   `json:"patient_id"`
	Filename         string   `json:"filename"`
	FileSize         int64    `json:"file_size"`
	IsImage          bool     `json:"is_image"`
	ProcessingType   string   `json:"processing_type"`
	StorageType      string   `json:"storage_type"`
	ExtractedText    string   `json:"extracted_text"`
	TextCount        int      `json:"text_count"`
	ProcessingMethod string   `json:"processing_method"`
	ConfidenceScore  *float64 `json:"confidence_score"`
}

type OCRHandler struct {
	log            *logger.Logger
	svc            *ingest.Service
	maxUploadBytes int64
}

func NewOCRHandler(log *logger.Logger, svc *ingest.Service, maxUploadBytes int64) *OCRHandler {
	return &OCRHandler{
		log:            log.With("handler", "OCRHandler"),
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *OCRHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", errors.New("multipart field 'file' is required"))
		return
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	patientID := strings.TrimSpace(c.Query("patient_id"))
	if patientID == "" {
		patientID = strings.TrimSpace(c.PostForm("patient_id"))
	}

	out, err := h.svc.Ingest(c.Request.Context(), ingest.Upload{
		Filename:     fh.Filename,
		DeclaredMIME: fh.Header.Get("Content-Type"),
		PatientID:    patientID,
		Data:         data,
	})
	if err != nil {
		h.log.Warn("Upload rejected", "filename", fh.Filename, "error", err.Error())
		response.RespondAPIError(c, err)
		return
	}

	rec := out.Record
	response.RespondOK(c, http.StatusOK, uploadResponse{
		Success:          true,
		DocumentID:       rec.DocumentID,
		PatientID:        rec.PatientID,
		Filename:         rec.Filename,
		FileSize:         rec.FileSize,
		IsImage:          out.IsImage,
		ProcessingType:   out.ProcessingType,
		StorageType:      out.StorageType,
		ExtractedText:    rec.ExtractedText,
		TextCount:        rec.TextCount,
		ProcessingMethod: rec.ProcessingMethod,
		ConfidenceScore:  rec.ConfidenceScore,
	})
}
