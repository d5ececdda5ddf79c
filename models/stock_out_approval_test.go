package models

import "testing"

func TestResolveApprovalTotals(t *testing.T) {
	lineItems := []StockOutLineItem{
		{
			RequestedQty: d("100"),
			Approvals: []StockOutApproval{
				{Layer: ApprovalLayerQuartermaster, Decision: ApprovalDecisionApproved, ApprovedQty: d("80")},
				{Layer: ApprovalLayerAdmin, Decision: ApprovalDecisionApproved, ApprovedQty: d("80"), WarehouseId: 3},
			},
		},
		{
			RequestedQty: d("50"),
			Approvals: []StockOutApproval{
				{Layer: ApprovalLayerQuartermaster, Decision: ApprovalDecisionRejected, ApprovedQty: d("50")},
			},
		},
		{
			// not yet decided at either layer
			RequestedQty: d("25"),
		},
	}

	totals := ResolveApprovalTotals(lineItems)

	if !totals.RequestedQty.Equal(d("175")) {
		t.Fatalf("RequestedQty = %s, want 175", totals.RequestedQty)
	}
	if !totals.L1ApprovedQty.Equal(d("80")) {
		t.Fatalf("L1ApprovedQty = %s, want 80", totals.L1ApprovedQty)
	}
	if !totals.L2AssignedQty.Equal(d("80")) {
		t.Fatalf("L2AssignedQty = %s, want 80", totals.L2AssignedQty)
	}
	if !totals.RejectedQty.Equal(d("50")) {
		t.Fatalf("RejectedQty = %s, want 50", totals.RejectedQty)
	}
	if !totals.EffectiveTarget.Equal(d("125")) {
		t.Fatalf("EffectiveTarget = %s, want 125", totals.EffectiveTarget)
	}
}

func TestResolveApprovalTotalsRejectionBucketsExclusively(t *testing.T) {
	// an admin-layer rejection counts only as rejected, never as assigned
	lineItems := []StockOutLineItem{
		{
			RequestedQty: d("10"),
			Approvals: []StockOutApproval{
				{Layer: ApprovalLayerAdmin, Decision: ApprovalDecisionRejected, ApprovedQty: d("10")},
			},
		},
	}
	totals := ResolveApprovalTotals(lineItems)
	if !totals.L2AssignedQty.IsZero() {
		t.Fatalf("L2AssignedQty = %s, want 0", totals.L2AssignedQty)
	}
	if !totals.RejectedQty.Equal(d("10")) {
		t.Fatalf("RejectedQty = %s, want 10", totals.RejectedQty)
	}
	if !totals.EffectiveTarget.IsZero() {
		t.Fatalf("EffectiveTarget = %s, want 0", totals.EffectiveTarget)
	}
}

func TestResolveApprovalTotalsEmpty(t *testing.T) {
	totals := ResolveApprovalTotals(nil)
	if !totals.RequestedQty.IsZero() || !totals.EffectiveTarget.IsZero() {
		t.Fatalf("empty request should produce zero totals, got %+v", totals)
	}
}
