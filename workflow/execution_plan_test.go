package workflow

// NOTE: These tests are intentionally DB-free. They validate the execution
// semantics that must hold regardless of store:
// - demand is aggregated per (item, warehouse) before validation
// - every shortfall is collected before failing, never just the first
//
// Full DB integration tests need an environment that can run MySQL.

import (
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/quartermaster_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBuildExecutionPlanAggregatesPerBucket(t *testing.T) {
	pending := []models.InventoryTransaction{
		{ID: 1, ItemId: 10, WarehouseId: 1, Qty: d("5")},
		{ID: 2, ItemId: 10, WarehouseId: 1, Qty: d("7")},
		{ID: 3, ItemId: 10, WarehouseId: 2, Qty: d("4")},
		{ID: 4, ItemId: 11, WarehouseId: 1, Qty: d("3")},
	}

	plan := BuildExecutionPlan(pending)

	if len(plan.TransactionIds) != 4 {
		t.Fatalf("TransactionIds = %v, want 4 ids", plan.TransactionIds)
	}
	if got := plan.Required[StockKey{ItemId: 10, WarehouseId: 1}]; !got.Equal(d("12")) {
		t.Fatalf("required for item 10 warehouse 1 = %s, want 12", got)
	}
	if got := plan.Required[StockKey{ItemId: 10, WarehouseId: 2}]; !got.Equal(d("4")) {
		t.Fatalf("required for item 10 warehouse 2 = %s, want 4", got)
	}
	if got := plan.Required[StockKey{ItemId: 11, WarehouseId: 1}]; !got.Equal(d("3")) {
		t.Fatalf("required for item 11 warehouse 1 = %s, want 3", got)
	}
}

func TestValidateExecutionPlanCollectsAllShortfalls(t *testing.T) {
	plan := BuildExecutionPlan([]models.InventoryTransaction{
		{ID: 1, ItemId: 10, WarehouseId: 1, Qty: d("12")},
		{ID: 2, ItemId: 10, WarehouseId: 2, Qty: d("4")},
		{ID: 3, ItemId: 11, WarehouseId: 1, Qty: d("3")},
	})
	available := map[StockKey]decimal.Decimal{
		{ItemId: 10, WarehouseId: 1}: d("10"), // short by 2
		{ItemId: 10, WarehouseId: 2}: d("4"),  // exact
		// item 11 warehouse 1 absent entirely, short by 3
	}

	shortfalls := ValidateExecutionPlan(plan, available)
	if len(shortfalls) != 2 {
		t.Fatalf("expected 2 shortfalls, got %d: %v", len(shortfalls), shortfalls)
	}
	// deterministic key order: (10,1) before (11,1)
	if shortfalls[0].ItemId != 10 || shortfalls[0].WarehouseId != 1 {
		t.Fatalf("first shortfall = %+v, want item 10 warehouse 1", shortfalls[0])
	}
	if !shortfalls[0].AvailableQty.Equal(d("10")) || !shortfalls[0].RequiredQty.Equal(d("12")) {
		t.Fatalf("first shortfall quantities = %+v", shortfalls[0])
	}
	if shortfalls[1].ItemId != 11 || !shortfalls[1].AvailableQty.IsZero() {
		t.Fatalf("second shortfall = %+v, want item 11 with zero available", shortfalls[1])
	}
}

func TestValidateExecutionPlanExactStockPasses(t *testing.T) {
	plan := BuildExecutionPlan([]models.InventoryTransaction{
		{ID: 1, ItemId: 10, WarehouseId: 1, Qty: d("5")},
	})
	available := map[StockKey]decimal.Decimal{
		{ItemId: 10, WarehouseId: 1}: d("5"),
	}
	if shortfalls := ValidateExecutionPlan(plan, available); len(shortfalls) != 0 {
		t.Fatalf("exact availability should pass, got %v", shortfalls)
	}
}

func TestStockShortfallErrorMessageNamesEveryPair(t *testing.T) {
	err := &StockShortfallError{Shortfalls: []StockShortfall{
		{ItemId: 10, WarehouseId: 1, RequiredQty: d("12"), AvailableQty: d("10")},
		{ItemId: 11, WarehouseId: 1, RequiredQty: d("3"), AvailableQty: d("0")},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "item 10 warehouse 1") || !strings.Contains(msg, "item 11 warehouse 1") {
		t.Fatalf("error message should name every pair: %q", msg)
	}

	var target *StockShortfallError
	if !errors.As(error(err), &target) {
		t.Fatal("StockShortfallError should unwrap via errors.As")
	}
	if !IsPreconditionError(err) {
		t.Fatal("shortfalls are precondition errors")
	}
}
