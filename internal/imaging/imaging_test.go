package imaging

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestClassifyDeclaredImage(t *testing.T) {
	c, err := Classify("image/jpeg", "scan.jpg", []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindImage {
		t.Fatalf("kind: want=image got=%v", c.Kind)
	}
	if c.FileType != "image/jpeg" {
		t.Fatalf("file_type: want=image/jpeg got=%s", c.FileType)
	}
}

func TestClassifyMagicBytesBeatGenericMIME(t *testing.T) {
	data := pngBytes(t, 2, 2)
	c, err := Classify("application/octet-stream", "upload.bin", data)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindImage {
		t.Fatalf("kind: want=image got=%v", c.Kind)
	}
	if c.FileType != "image/png" {
		t.Fatalf("file_type: want=image/png got=%s", c.FileType)
	}
}

func TestClassifyUTF8Text(t *testing.T) {
	c, err := Classify("", "notes.txt", []byte("patient complains of headache"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindText {
		t.Fatalf("kind: want=text got=%v", c.Kind)
	}
	if c.FileType != "text/plain" {
		t.Fatalf("file_type: want=text/plain got=%s", c.FileType)
	}
}

func TestClassifyDeclaredTextualMIME(t *testing.T) {
	c, err := Classify("application/json", "labs.json", []byte(`{"hb": 11.2}`))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindText {
		t.Fatalf("kind: want=text got=%v", c.Kind)
	}
}

func TestClassifyExtensionAssist(t *testing.T) {
	// Binary, generic MIME, but a known image extension.
	c, err := Classify("application/octet-stream", "scan.tiff", []byte{0x01, 0x02, 0x00, 0xFE})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindImage {
		t.Fatalf("kind: want=image got=%v", c.Kind)
	}
	if c.FileType != "image/tiff" {
		t.Fatalf("file_type: want=image/tiff got=%s", c.FileType)
	}
}

func TestClassifyOpaqueDeclared(t *testing.T) {
	c, err := Classify("application/pdf", "report.pdf", []byte{0x25, 0x50, 0x44, 0x46, 0x00})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Kind != KindOpaque {
		t.Fatalf("kind: want=opaque got=%v", c.Kind)
	}
}

func TestClassifyUnclassifiable(t *testing.T) {
	_, err := Classify("application/octet-stream", "payload", []byte{0x00, 0xFF, 0x00, 0xFF})
	if err != ErrUnclassifiable {
		t.Fatalf("want=ErrUnclassifiable got=%v", err)
	}
}

func TestNormalizeForOCRSmallImageUntouched(t *testing.T) {
	data := pngBytes(t, 100, 60)
	out, err := NormalizeForOCR(data)
	if err != nil {
		t.Fatalf("NormalizeForOCR: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("small image was re-encoded")
	}
}

func TestNormalizeForOCRDownscalesLarge(t *testing.T) {
	data := pngBytes(t, 4096, 1024)
	out, err := NormalizeForOCR(data)
	if err != nil {
		t.Fatalf("NormalizeForOCR: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != MaxOCRDimension {
		t.Fatalf("width: want=%d got=%d", MaxOCRDimension, b.Dx())
	}
	if b.Dy() != 512 {
		t.Fatalf("height: want=512 got=%d", b.Dy())
	}
}

func TestNormalizeForOCRRejectsGarbage(t *testing.T) {
	if _, err := NormalizeForOCR([]byte("not an image")); err == nil {
		t.Fatalf("want decode error, got nil")
	}
}
