package models

import (
	"strings"
	"testing"
	"time"
)

func TestDiffAuditFieldsOmitsNoOps(t *testing.T) {
	oldValues := map[string]interface{}{
		"notes":       "rush order",
		"supplier_id": 4,
		"amount":      d("100.50"),
	}
	newValues := map[string]interface{}{
		"notes":       "rush order",
		"supplier_id": 7,
		"amount":      d("100.5000"), // same value, different exponent
	}

	changes := DiffAuditFields(oldValues, newValues)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %v", len(changes), changes)
	}
	c, ok := changes["supplier_id"]
	if !ok {
		t.Fatalf("expected supplier_id change, got %v", changes)
	}
	if c.Old != 4 || c.New != 7 {
		t.Fatalf("supplier_id change = %+v, want {4 7}", c)
	}
}

func TestDiffAuditFieldsNewField(t *testing.T) {
	changes := DiffAuditFields(map[string]interface{}{}, map[string]interface{}{"notes": "added"})
	c, ok := changes["notes"]
	if !ok {
		t.Fatalf("expected notes change, got %v", changes)
	}
	if c.Old != nil || c.New != "added" {
		t.Fatalf("notes change = %+v, want {nil added}", c)
	}
}

func TestDiffAuditFieldsNothingChanged(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := map[string]interface{}{"expected_delivery_date": at}
	if changes := DiffAuditFields(values, map[string]interface{}{"expected_delivery_date": at}); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

func TestSummarizeChangesStableOrder(t *testing.T) {
	changes := map[string]FieldChange{
		"supplier_id": {Old: 4, New: 7},
		"notes":       {Old: nil, New: "rush"},
	}
	summary := SummarizeChanges(changes)
	if !strings.Contains(summary, "notes: (none) -> rush") {
		t.Fatalf("summary missing notes line: %q", summary)
	}
	// fields are sorted, so notes comes before supplier_id
	if strings.Index(summary, "notes:") > strings.Index(summary, "supplier_id:") {
		t.Fatalf("summary field order not stable: %q", summary)
	}
	if SummarizeChanges(nil) != "" {
		t.Fatal("empty changes should summarize to empty string")
	}
}
