package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
)

// StockOutRequest groups line items moving through the two-layer
// approval/execution pipeline.
type StockOutRequest struct {
	ID            int                `gorm:"primary_key" json:"id"`
	BusinessId    string             `gorm:"index;not null" json:"business_id"`
	RequestNumber string             `gorm:"size:255;not null" json:"request_number"`
	SequenceNo    decimal.Decimal    `gorm:"type:decimal(15);not null" json:"sequence_no"`
	RequestDate   time.Time          `gorm:"not null" json:"request_date"`
	Notes         string             `gorm:"type:text" json:"notes"`
	LineItems     []StockOutLineItem `gorm:"foreignKey:StockOutRequestId" json:"line_items"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockOutLineItem struct {
	ID                int                `gorm:"primary_key" json:"id"`
	BusinessId        string             `gorm:"index;not null" json:"business_id"`
	StockOutRequestId int                `gorm:"index;not null" json:"stock_out_request_id"`
	QmhqId            int                `gorm:"index;default:null" json:"qmhq_id"`
	ItemId            int                `gorm:"index;not null" json:"item_id"`
	RequestedQty      decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"requested_qty"`
	IsExecuted        *bool              `gorm:"not null;default:false" json:"is_executed"`
	Approvals         []StockOutApproval `gorm:"foreignKey:StockOutLineItemId" json:"approvals"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockOutApproval is one decision row. L1 (quartermaster) approves a
// quantity; L2 (admin) assigns a warehouse, which spawns the pending
// inventory transaction.
type StockOutApproval struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	StockOutLineItemId int              `gorm:"index;not null" json:"stock_out_line_item_id"`
	Layer              ApprovalLayer    `gorm:"type:enum('Quartermaster','Admin');not null" json:"layer"`
	Decision           ApprovalDecision `gorm:"type:enum('Approved','Rejected');not null" json:"decision"`
	ApprovedQty        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"approved_qty"`
	WarehouseId        int              `gorm:"index;default:null" json:"warehouse_id"`
	DecidedBy          int              `gorm:"index;not null" json:"decided_by"`
	DecidedAt          time.Time        `gorm:"autoCreateTime" json:"decided_at"`
	Notes              string           `gorm:"type:text" json:"notes"`
}

// ApprovalTotals are the per-layer sums over one request's line items.
// A given approval row contributes to exactly one bucket.
type ApprovalTotals struct {
	RequestedQty    decimal.Decimal `json:"requested_qty"`
	L1ApprovedQty   decimal.Decimal `json:"l1_approved_qty"`
	L2AssignedQty   decimal.Decimal `json:"l2_assigned_qty"`
	RejectedQty     decimal.Decimal `json:"rejected_qty"`
	EffectiveTarget decimal.Decimal `json:"effective_target_qty"`
}

// ResolveApprovalTotals walks every line item's approvals and sums them per
// layer. Approvals are additive across line items; no mutation happens here.
func ResolveApprovalTotals(lineItems []StockOutLineItem) ApprovalTotals {
	var totals ApprovalTotals
	for _, line := range lineItems {
		totals.RequestedQty = totals.RequestedQty.Add(line.RequestedQty)
		for _, approval := range line.Approvals {
			switch {
			case approval.Decision == ApprovalDecisionRejected:
				totals.RejectedQty = totals.RejectedQty.Add(approval.ApprovedQty)
			case approval.Layer == ApprovalLayerQuartermaster:
				totals.L1ApprovedQty = totals.L1ApprovedQty.Add(approval.ApprovedQty)
			case approval.Layer == ApprovalLayerAdmin:
				totals.L2AssignedQty = totals.L2AssignedQty.Add(approval.ApprovedQty)
			}
		}
	}
	totals.EffectiveTarget = totals.RequestedQty.Sub(totals.RejectedQty)
	return totals
}

type NewStockOutRequest struct {
	RequestDate time.Time             `json:"request_date" binding:"required"`
	Notes       string                `json:"notes"`
	LineItems   []NewStockOutLineItem `json:"line_items" binding:"required" validate:"required,dive,required"`
}

type NewStockOutLineItem struct {
	QmhqId       int             `json:"qmhq_id"`
	ItemId       int             `json:"item_id" binding:"required"`
	RequestedQty decimal.Decimal `json:"requested_qty" binding:"required"`
}

func (input NewStockOutRequest) validate(ctx context.Context, businessId string) error {
	if len(input.LineItems) == 0 {
		return errors.New("at least one line item is required")
	}
	var itemIds []int
	var qmhqIds []int
	for _, line := range input.LineItems {
		if !line.RequestedQty.IsPositive() {
			return errors.New("requested qty must be positive")
		}
		itemIds = append(itemIds, line.ItemId)
		if line.QmhqId != 0 {
			qmhqIds = append(qmhqIds, line.QmhqId)
		}
	}
	if err := utils.ValidateResourcesId[Item](ctx, businessId, itemIds); err != nil {
		return errors.New("item not found")
	}
	if len(qmhqIds) > 0 {
		if err := utils.ValidateResourcesId[QMHQ](ctx, businessId, qmhqIds); err != nil {
			return errors.New("qmhq line not found")
		}
	}
	return nil
}

func CreateStockOutRequest(ctx context.Context, input *NewStockOutRequest) (*StockOutRequest, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	var lineItems []StockOutLineItem
	for _, line := range input.LineItems {
		lineItems = append(lineItems, StockOutLineItem{
			BusinessId:   businessId,
			QmhqId:       line.QmhqId,
			ItemId:       line.ItemId,
			RequestedQty: line.RequestedQty,
			IsExecuted:   utils.NewFalse(),
		})
	}

	request := StockOutRequest{
		BusinessId:  businessId,
		RequestDate: input.RequestDate,
		Notes:       input.Notes,
		LineItems:   lineItems,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[StockOutRequest](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	request.SequenceNo = decimal.NewFromInt(seqNo)
	request.RequestNumber = "SOR-" + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&request).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := SaveAuditCreate(tx.WithContext(ctx), "stock_out_requests", request.ID, &request,
		"Stock-out request "+request.RequestNumber+" created"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func GetStockOutRequest(ctx context.Context, id int) (*StockOutRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockOutRequest](ctx, businessId, id, "LineItems", "LineItems.Approvals")
}

// GetApprovalTotals loads the request with approvals and aggregates them for
// fulfillment reporting.
func GetApprovalTotals(ctx context.Context, requestId int) (*ApprovalTotals, error) {
	request, err := GetStockOutRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}
	totals := ResolveApprovalTotals(request.LineItems)
	return &totals, nil
}

type NewStockOutApproval struct {
	StockOutLineItemId int              `json:"stock_out_line_item_id" binding:"required"`
	Layer              ApprovalLayer    `json:"layer" binding:"required"`
	Decision           ApprovalDecision `json:"decision" binding:"required"`
	ApprovedQty        decimal.Decimal  `json:"approved_qty"`
	WarehouseId        int              `json:"warehouse_id"`
	Notes              string           `json:"notes"`
}

// CreateStockOutApproval records one decision. An admin-layer approval must
// assign a warehouse, and spawns the pending inventory transaction in the
// same database transaction; the transaction only completes later through the
// execution engine.
func CreateStockOutApproval(ctx context.Context, input *NewStockOutApproval) (*StockOutApproval, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	actorId, ok := utils.GetActorIdFromContext(ctx)
	if !ok {
		return nil, errors.New("actor id is required")
	}

	lineItem, err := utils.FetchModel[StockOutLineItem](ctx, businessId, input.StockOutLineItemId)
	if err != nil {
		return nil, errors.New("stock-out line item not found")
	}
	if lineItem.IsExecuted != nil && *lineItem.IsExecuted {
		return nil, errors.New("line item has already been executed")
	}

	if input.Decision == ApprovalDecisionApproved && !input.ApprovedQty.IsPositive() {
		return nil, errors.New("approved qty must be positive")
	}
	if input.Layer == ApprovalLayerAdmin && input.Decision == ApprovalDecisionApproved {
		if input.WarehouseId == 0 {
			return nil, errors.New("admin approval requires a warehouse")
		}
		if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
			return nil, errors.New("warehouse not found")
		}
	}

	approval := StockOutApproval{
		StockOutLineItemId: input.StockOutLineItemId,
		Layer:              input.Layer,
		Decision:           input.Decision,
		ApprovedQty:        input.ApprovedQty,
		WarehouseId:        input.WarehouseId,
		DecidedBy:          actorId,
		Notes:              input.Notes,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Create(&approval).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	action := AuditActionApprove
	if input.Decision == ApprovalDecisionRejected {
		action = AuditActionAssignmentChange
	}
	if err := SaveAuditAction(tx.WithContext(ctx), "stock_out_line_items", lineItem.ID, action,
		map[string]FieldChange{
			"layer":        {Old: nil, New: string(input.Layer)},
			"decision":     {Old: nil, New: string(input.Decision)},
			"approved_qty": {Old: nil, New: input.ApprovedQty.String()},
		}, input.Notes); err != nil {
		tx.Rollback()
		return nil, err
	}

	// Warehouse assignment at L2 creates the pending movement; execution
	// completes it later, all-or-nothing per request.
	if input.Layer == ApprovalLayerAdmin && input.Decision == ApprovalDecisionApproved {
		pending := InventoryTransaction{
			BusinessId:         businessId,
			MovementType:       MovementTypeInventoryOut,
			Status:             InventoryTransactionStatusPending,
			Qty:                input.ApprovedQty,
			ItemId:             lineItem.ItemId,
			WarehouseId:        input.WarehouseId,
			StockOutApprovalId: &approval.ID,
			IsActive:           utils.NewTrue(),
		}
		if lineItem.QmhqId != 0 {
			qmhqId := lineItem.QmhqId
			pending.QmhqId = &qmhqId
		}
		if err := tx.WithContext(ctx).Create(&pending).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &approval, nil
}
