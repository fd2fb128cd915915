package types

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ProcessingMethodPrimaryOCR     = "primary_ocr"
	ProcessingMethodVisionFallback = "vision_fallback"
	ProcessingMethodNone           = "none"

	DocumentTypeMedicalImage    = "medical_image"
	DocumentTypeMedicalDocument = "medical_document"
	DocumentTypeUnknown         = "unknown"

	ProcessingTypeImageOCR      = "image_ocr"
	ProcessingTypeTextStorage   = "text_storage"
	ProcessingTypeOpaqueStorage = "opaque_storage"

	StorageTypeDurable   = "durable"
	StorageTypeEphemeral = "ephemeral"

	// Sentinel used when the caller does not provide a patient id.
	AnonymousPatientID = "anonymous"
)

// OCRRegion is one recognized text region. Confidence is in [0,1];
// BBox holds the four corner vertices clockwise from top-left.
type OCRRegion struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	BBox       [][2]float64 `json:"bbox"`
}

// DocumentRecord is the single first-class entity the service persists.
// Records are append-only: created exactly once, never mutated.
type DocumentRecord struct {
	DocumentID   string `gorm:"column:document_id;primaryKey" json:"document_id"`
	PatientID    string `gorm:"column:patient_id;not null;index;index:idx_patient_created,priority:1" json:"patient_id"`
	Filename     string `gorm:"column:filename;not null" json:"filename"`
	FileType     string `gorm:"column:file_type" json:"file_type"`
	FileSize     int64  `gorm:"column:file_size" json:"file_size"`
	DocumentType string `gorm:"column:document_type;not null" json:"document_type"`

	// Full original payload, base64-encoded. Always stored; projected away
	// from listings and (by default) single fetches.
	Base64Data string `gorm:"column:base64_data;type:text" json:"base64_data,omitempty"`

	ExtractedText string                         `gorm:"column:extracted_text;type:text" json:"extracted_text"`
	OCRResults    datatypes.JSONSlice[OCRRegion] `gorm:"column:ocr_results" json:"ocr_results"`
	TextCount     int                            `gorm:"column:text_count" json:"text_count"`

	ProcessingMethod string   `gorm:"column:processing_method;not null;default:'none'" json:"processing_method"`
	ProcessingTime   *float64 `gorm:"column:processing_time" json:"processing_time"`
	ConfidenceScore  *float64 `gorm:"column:confidence_score" json:"confidence_score"`

	CreatedAt time.Time         `gorm:"column:created_at;not null;index:idx_patient_created,priority:2,sort:desc" json:"created_at"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
}

func (DocumentRecord) TableName() string { return "patient_documents" }

// WithoutPayload returns a copy of the record with base64_data projected
// away. The record itself is never mutated.
func (r DocumentRecord) WithoutPayload() DocumentRecord {
	r.Base64Data = ""
	return r
}
