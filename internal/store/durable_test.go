package store

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arunlm/medilab-backend/internal/types"
)

func testDurable(t *testing.T) *DurableStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.DocumentRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDurableStore(db, "", testLogger(t))
}

func TestDurableCustomCollectionName(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Table("maternal_documents").AutoMigrate(&types.DocumentRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewDurableStore(db, "maternal_documents", testLogger(t))
	ctx := context.Background()

	rec := testRecord("doc_300_0001", "p2", time.Now().UTC())
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var n int64
	if err := db.Table("maternal_documents").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows in configured table: want=1 got=%d", n)
	}

	got, err := s.GetByID(ctx, rec.DocumentID, true)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Base64Data != rec.Base64Data {
		t.Fatalf("payload round-trip: want=%q got=%q", rec.Base64Data, got.Base64Data)
	}
}

func TestDurableRoundTrip(t *testing.T) {
	s := testDurable(t)
	ctx := context.Background()

	rec := testRecord("doc_200_5678", "p9", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.GetByID(ctx, rec.DocumentID, true)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Base64Data != rec.Base64Data {
		t.Fatalf("payload round-trip: want=%q got=%q", rec.Base64Data, got.Base64Data)
	}
	if len(got.OCRResults) != 1 || got.OCRResults[0].Text != "hello" {
		t.Fatalf("regions round-trip: got=%+v", got.OCRResults)
	}
	if got.ProcessingMethod != types.ProcessingMethodPrimaryOCR {
		t.Fatalf("processing_method: want=%s got=%s", types.ProcessingMethodPrimaryOCR, got.ProcessingMethod)
	}
}

func TestDurableProjection(t *testing.T) {
	s := testDurable(t)
	ctx := context.Background()

	rec := testRecord("doc_201_1111", "p9", time.Now().UTC())
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.GetByID(ctx, rec.DocumentID, false)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Base64Data != "" {
		t.Fatalf("payload not omitted: got=%q", got.Base64Data)
	}

	list, err := s.ListByPatient(ctx, "p9", 20, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list len: want=1 got=%d", len(list))
	}
	if list[0].Base64Data != "" {
		t.Fatalf("listing leaked payload")
	}
	if list[0].OCRResults != nil {
		t.Fatalf("listing leaked regions")
	}

	// The stored record still carries the payload.
	full, err := s.GetByID(ctx, rec.DocumentID, true)
	if err != nil {
		t.Fatalf("GetByID full: %v", err)
	}
	if full.Base64Data != rec.Base64Data {
		t.Fatalf("payload lost by projection: want=%q got=%q", rec.Base64Data, full.Base64Data)
	}
}

func TestDurableDuplicateID(t *testing.T) {
	s := testDurable(t)
	ctx := context.Background()

	rec := testRecord("doc_202_2222", "p9", time.Now().UTC())
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := s.Save(ctx, rec); err != ErrDuplicateID {
		t.Fatalf("second Save: want=ErrDuplicateID got=%v", err)
	}
}

func TestDurableListOrdering(t *testing.T) {
	s := testDurable(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ids := []struct {
		id string
		at time.Time
	}{
		{"doc_1_1111", base},
		{"doc_2_2222", base.Add(time.Minute)},
		{"doc_3_3333", base.Add(2 * time.Minute)},
		{"doc_3_4444", base.Add(2 * time.Minute)},
	}
	for _, e := range ids {
		if err := s.Save(ctx, testRecord(e.id, "p9", e.at)); err != nil {
			t.Fatalf("Save %s: %v", e.id, err)
		}
	}

	got, err := s.ListByPatient(ctx, "p9", 20, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	wantOrder := []string{"doc_3_4444", "doc_3_3333", "doc_2_2222", "doc_1_1111"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len: want=%d got=%d", len(wantOrder), len(got))
	}
	for i, want := range wantOrder {
		if got[i].DocumentID != want {
			t.Fatalf("order[%d]: want=%s got=%s", i, want, got[i].DocumentID)
		}
	}
}

func TestDurableGetMissing(t *testing.T) {
	s := testDurable(t)
	if _, err := s.GetByID(context.Background(), "doc_0_0000", true); err != ErrNotFound {
		t.Fatalf("want=ErrNotFound got=%v", err)
	}
}
