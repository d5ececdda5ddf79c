package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/models"
)

func TestCheckCancelPreconditions(t *testing.T) {
	cases := []struct {
		status models.PurchaseOrderStatus
		want   error
	}{
		{models.PurchaseOrderStatusNotStarted, nil},
		{models.PurchaseOrderStatusPartiallyInvoiced, nil},
		{models.PurchaseOrderStatusAwaitingDelivery, nil},
		{models.PurchaseOrderStatusPartiallyReceived, nil},
		{models.PurchaseOrderStatusCancelled, ErrAlreadyCancelled},
		{models.PurchaseOrderStatusClosed, ErrCannotCancelClosed},
	}
	for _, tc := range cases {
		if got := CheckCancelPreconditions(tc.status); !errors.Is(got, tc.want) {
			t.Fatalf("CheckCancelPreconditions(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestCheckUnlockPreconditions(t *testing.T) {
	if err := CheckUnlockPreconditions(models.PurchaseOrderStatusClosed); err != nil {
		t.Fatalf("closed PO should unlock, got %v", err)
	}
	for _, status := range []models.PurchaseOrderStatus{
		models.PurchaseOrderStatusNotStarted,
		models.PurchaseOrderStatusPartiallyReceived,
		models.PurchaseOrderStatusCancelled,
	} {
		if err := CheckUnlockPreconditions(status); !errors.Is(err, ErrNotClosed) {
			t.Fatalf("CheckUnlockPreconditions(%q) = %v, want ErrNotClosed", status, err)
		}
	}
}

func TestCheckEditPreconditions(t *testing.T) {
	if err := CheckEditPreconditions(models.PurchaseOrderStatusPartiallyInvoiced); err != nil {
		t.Fatalf("open PO should be editable, got %v", err)
	}
	if err := CheckEditPreconditions(models.PurchaseOrderStatusClosed); !errors.Is(err, ErrCannotEditClosed) {
		t.Fatalf("closed edit = %v, want ErrCannotEditClosed", err)
	}
	if err := CheckEditPreconditions(models.PurchaseOrderStatusCancelled); !errors.Is(err, ErrCannotEditCancelled) {
		t.Fatalf("cancelled edit = %v, want ErrCannotEditCancelled", err)
	}
}

func TestResolveUnlockedStatusRecomputesFromAggregates(t *testing.T) {
	po := &models.PurchaseOrder{
		CurrentStatus: models.PurchaseOrderStatusClosed,
		Details: []models.POLineItem{
			{Qty: d("100"), InvoicedQty: d("90"), ReceivedQty: d("90")},
		},
	}
	// a correction already landed: recompute yields the real status
	if got := ResolveUnlockedStatus(po); got != models.PurchaseOrderStatusPartiallyInvoiced {
		t.Fatalf("ResolveUnlockedStatus = %q, want %q", got, models.PurchaseOrderStatusPartiallyInvoiced)
	}
}

func TestResolveUnlockedStatusFallsBackWhenStillClosed(t *testing.T) {
	po := &models.PurchaseOrder{
		CurrentStatus: models.PurchaseOrderStatusClosed,
		Details: []models.POLineItem{
			{Qty: d("100"), InvoicedQty: d("100"), ReceivedQty: d("100")},
		},
	}
	// nothing corrected yet: escape hatch so the record becomes editable
	if got := ResolveUnlockedStatus(po); got != models.PurchaseOrderStatusPartiallyReceived {
		t.Fatalf("ResolveUnlockedStatus = %q, want %q", got, models.PurchaseOrderStatusPartiallyReceived)
	}
}

func TestDiffHeaderFields(t *testing.T) {
	delivery := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	po := &models.PurchaseOrder{
		SupplierId:           4,
		Notes:                "rush",
		ExpectedDeliveryDate: &delivery,
		SignerName:           "Aye Chan",
	}

	sameNotes := "rush"
	newSupplier := 7
	newSigner := "Min Thu"
	changes, updates := DiffHeaderFields(po, &models.PurchaseOrderHeaderInput{
		SupplierId: &newSupplier,
		Notes:      &sameNotes,
		SignerName: &newSigner,
	})

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %v", len(changes), changes)
	}
	if _, ok := changes["notes"]; ok {
		t.Fatal("unchanged notes must be omitted")
	}
	if changes["supplier_id"].Old != 4 || changes["supplier_id"].New != 7 {
		t.Fatalf("supplier_id change = %+v", changes["supplier_id"])
	}
	if updates["signer_name"] != "Min Thu" {
		t.Fatalf("updates = %v", updates)
	}
	// nil fields mean leave unchanged
	if _, ok := updates["expected_delivery_date"]; ok {
		t.Fatal("nil input field must not produce an update")
	}
}

func TestDiffHeaderFieldsDeliveryDate(t *testing.T) {
	delivery := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	// no date on record yet: setting one is a change
	po := &models.PurchaseOrder{SupplierId: 4}
	changes, updates := DiffHeaderFields(po, &models.PurchaseOrderHeaderInput{
		ExpectedDeliveryDate: &delivery,
	})
	if changes["expected_delivery_date"].New != delivery {
		t.Fatalf("changes = %+v", changes)
	}
	if updates["expected_delivery_date"] != delivery {
		t.Fatalf("updates = %v", updates)
	}

	// same date again is a no-op
	po.ExpectedDeliveryDate = &delivery
	sameDelivery := delivery
	changes, updates = DiffHeaderFields(po, &models.PurchaseOrderHeaderInput{
		ExpectedDeliveryDate: &sameDelivery,
	})
	if len(changes) != 0 || len(updates) != 0 {
		t.Fatalf("unchanged delivery date should be omitted, got %v / %v", changes, updates)
	}
}

func TestDiffHeaderFieldsNoOp(t *testing.T) {
	po := &models.PurchaseOrder{SupplierId: 4, Notes: "rush"}
	sameSupplier := 4
	sameNotes := "rush"
	changes, updates := DiffHeaderFields(po, &models.PurchaseOrderHeaderInput{
		SupplierId: &sameSupplier,
		Notes:      &sameNotes,
	})
	if len(changes) != 0 || len(updates) != 0 {
		t.Fatalf("no-op update should produce empty maps, got %v / %v", changes, updates)
	}
}

func TestIsPreconditionError(t *testing.T) {
	for _, err := range []error{
		ErrAlreadyCancelled, ErrCannotCancelClosed,
		ErrNotClosed, ErrCannotEditClosed, ErrCannotEditCancelled, ErrNothingToExecute,
	} {
		if !IsPreconditionError(err) {
			t.Fatalf("%v should be a precondition error", err)
		}
	}
	// authorization failures are their own class, surfaced verbatim
	if IsPreconditionError(ErrNotElevated) {
		t.Fatal("ErrNotElevated is an authorization error, not a precondition error")
	}
	if IsPreconditionError(errors.New("connection reset")) {
		t.Fatal("infrastructure errors are not precondition errors")
	}
}
