package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryTransaction is one stock movement. Rows are created Pending by an
// admin-layer warehouse assignment and flipped to Completed by the execution
// engine; only completed active rows count toward availability.
type InventoryTransaction struct {
	ID                 int                        `gorm:"primary_key" json:"id"`
	BusinessId         string                     `gorm:"index;not null" json:"business_id"`
	MovementType       MovementType               `gorm:"type:enum('Inventory In','Inventory Out');not null" json:"movement_type"`
	Status             InventoryTransactionStatus `gorm:"type:enum('Pending','Completed','Cancelled');default:'Pending'" json:"status"`
	Qty                decimal.Decimal            `gorm:"type:decimal(20,4);default:0" json:"qty"`
	ItemId             int                        `gorm:"index;not null" json:"item_id"`
	WarehouseId        int                        `gorm:"index;not null" json:"warehouse_id"`
	StockOutApprovalId *int                       `gorm:"index;default:null" json:"stock_out_approval_id"`
	QmhqId             *int                       `gorm:"index;default:null" json:"qmhq_id"`
	TransactionDate    time.Time                  `gorm:"autoCreateTime" json:"transaction_date"`
	IsActive           *bool                      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time                  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AvailableStock returns net availability for one item in one warehouse:
// SUM(in) - SUM(out) over completed, active transactions. Nothing is cached;
// every call recomputes from the ledger so a cancelled row drops out
// immediately.
func AvailableStock(tx *gorm.DB, businessId string, itemId int, warehouseId int) (decimal.Decimal, error) {
	var available decimal.NullDecimal
	err := tx.Model(&InventoryTransaction{}).
		Select("COALESCE(SUM(CASE WHEN movement_type = ? THEN qty ELSE -qty END), 0)",
			MovementTypeInventoryIn).
		Where("business_id = ? AND item_id = ? AND warehouse_id = ? AND status = ? AND is_active = true",
			businessId, itemId, warehouseId, InventoryTransactionStatusCompleted).
		Scan(&available).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !available.Valid {
		return decimal.Zero, nil
	}
	return available.Decimal, nil
}

// GetAvailableStock is the read-only service entry point.
func GetAvailableStock(ctx context.Context, itemId int, warehouseId int) (decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}
	return AvailableStock(config.GetDB().WithContext(ctx), businessId, itemId, warehouseId)
}

// FindPendingTransactionsForRequest loads the pending out-movements spawned by
// a request's admin approvals, in deterministic id order. The execution engine
// validates and flips these as one unit.
func FindPendingTransactionsForRequest(tx *gorm.DB, businessId string, requestId int) ([]InventoryTransaction, error) {
	var transactions []InventoryTransaction
	err := tx.
		Joins("JOIN stock_out_approvals ON stock_out_approvals.id = inventory_transactions.stock_out_approval_id").
		Joins("JOIN stock_out_line_items ON stock_out_line_items.id = stock_out_approvals.stock_out_line_item_id").
		Where("stock_out_line_items.stock_out_request_id = ?", requestId).
		Where("inventory_transactions.business_id = ?", businessId).
		Where("inventory_transactions.status = ?", InventoryTransactionStatusPending).
		Where("inventory_transactions.movement_type = ?", MovementTypeInventoryOut).
		Where("inventory_transactions.is_active = true").
		Order("inventory_transactions.id asc").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

type NewInventoryIn struct {
	ItemId          int             `json:"item_id" binding:"required"`
	WarehouseId     int             `json:"warehouse_id" binding:"required"`
	Qty             decimal.Decimal `json:"qty" binding:"required"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// RecordInventoryIn books a completed in-movement, typically a goods receipt.
func RecordInventoryIn(ctx context.Context, input *NewInventoryIn) (*InventoryTransaction, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Qty.IsPositive() {
		return nil, errors.New("qty must be positive")
	}
	if err := utils.ValidateResourceId[Item](ctx, businessId, input.ItemId); err != nil {
		return nil, errors.New("item not found")
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
		return nil, errors.New("warehouse not found")
	}

	transactionDate := input.TransactionDate
	if transactionDate.IsZero() {
		transactionDate = time.Now()
	}
	transaction := InventoryTransaction{
		BusinessId:      businessId,
		MovementType:    MovementTypeInventoryIn,
		Status:          InventoryTransactionStatusCompleted,
		Qty:             input.Qty,
		ItemId:          input.ItemId,
		WarehouseId:     input.WarehouseId,
		TransactionDate: transactionDate,
		IsActive:        utils.NewTrue(),
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Create(&transaction).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := SaveAuditCreate(tx.WithContext(ctx), "inventory_transactions", transaction.ID, &transaction,
		"Inventory in recorded"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

// CancelInventoryTransaction voids a pending movement. Completed rows cannot
// be cancelled; book a reversing movement instead.
func CancelInventoryTransaction(ctx context.Context, id int) (*InventoryTransaction, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	transaction, err := utils.FetchModel[InventoryTransaction](ctx, businessId, id)
	if err != nil {
		return nil, errors.New("inventory transaction not found")
	}
	if transaction.Status != InventoryTransactionStatusPending {
		return nil, errors.New("only pending transactions can be cancelled")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	result := tx.WithContext(ctx).Model(&InventoryTransaction{}).
		Where("id = ? AND business_id = ? AND status = ?", id, businessId, InventoryTransactionStatusPending).
		Update("status", InventoryTransactionStatusCancelled)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, errors.New("transaction is no longer pending")
	}

	if err := SaveAuditStatusChange(tx.WithContext(ctx), "inventory_transactions", id,
		string(InventoryTransactionStatusPending), string(InventoryTransactionStatusCancelled), ""); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	transaction.Status = InventoryTransactionStatusCancelled
	return transaction, nil
}
