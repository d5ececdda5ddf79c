package models

import (
	"testing"
	"time"
)

func TestCompositeCursorRoundTrip(t *testing.T) {
	created := time.Date(2026, 8, 1, 9, 30, 0, 123456000, time.UTC)

	po := PurchaseOrder{ID: 42, CreatedAt: created}
	cursor := EncodeCompositeCursor(po.GetCursor(), po.GetId())
	sortValue, id := DecodeCompositeCursor(&cursor)
	if sortValue != "2026-08-01 09:30:00.123456" || id != 42 {
		t.Fatalf("decoded (%q, %d)", sortValue, id)
	}

	q := QMHQ{ID: 7, CreatedAt: created}
	cursor = EncodeCompositeCursor(q.GetCursor(), q.GetId())
	if _, id := DecodeCompositeCursor(&cursor); id != 7 {
		t.Fatalf("decoded id = %d", id)
	}
}

func TestDecodeCompositeCursorGarbage(t *testing.T) {
	for _, bad := range []*string{nil, strPtr(""), strPtr("not-base64!"), strPtr("bm9wZQ==")} {
		sortValue, id := DecodeCompositeCursor(bad)
		if sortValue != "" || id != 0 {
			t.Fatalf("garbage cursor decoded to (%q, %d)", sortValue, id)
		}
	}
}

func strPtr(s string) *string { return &s }
