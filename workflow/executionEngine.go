package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/models"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("quartermaster-backend")

// StockKey identifies one availability bucket.
type StockKey struct {
	ItemId      int
	WarehouseId int
}

// ExecutionPlan is the pure aggregation of a request's pending out-movements.
// Requirements are summed per (item, warehouse) so two lines drawing on the
// same bucket are validated against their combined demand.
type ExecutionPlan struct {
	TransactionIds []int
	Required       map[StockKey]decimal.Decimal
}

// BuildExecutionPlan aggregates pending transactions into per-bucket demand.
// Order of TransactionIds follows the input.
func BuildExecutionPlan(pending []models.InventoryTransaction) ExecutionPlan {
	plan := ExecutionPlan{
		Required: map[StockKey]decimal.Decimal{},
	}
	for _, txn := range pending {
		plan.TransactionIds = append(plan.TransactionIds, txn.ID)
		key := StockKey{ItemId: txn.ItemId, WarehouseId: txn.WarehouseId}
		plan.Required[key] = plan.Required[key].Add(txn.Qty)
	}
	return plan
}

// ValidateExecutionPlan checks every bucket and returns every shortfall, not
// just the first. Buckets are visited in deterministic key order so the
// shortfall list is stable.
func ValidateExecutionPlan(plan ExecutionPlan, available map[StockKey]decimal.Decimal) []StockShortfall {
	keys := make([]StockKey, 0, len(plan.Required))
	for key := range plan.Required {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ItemId != keys[j].ItemId {
			return keys[i].ItemId < keys[j].ItemId
		}
		return keys[i].WarehouseId < keys[j].WarehouseId
	})

	var shortfalls []StockShortfall
	for _, key := range keys {
		required := plan.Required[key]
		have := available[key]
		if have.LessThan(required) {
			shortfalls = append(shortfalls, StockShortfall{
				ItemId:       key.ItemId,
				WarehouseId:  key.WarehouseId,
				RequiredQty:  required,
				AvailableQty: have,
			})
		}
	}
	return shortfalls
}

type ExecutionResult struct {
	StockOutRequestId int             `json:"stock_out_request_id"`
	ExecutedCount     int             `json:"executed_count"`
	ExecutedQty       decimal.Decimal `json:"executed_qty"`
	ExecutedAt        time.Time       `json:"executed_at"`
}

// ExecuteStockOut completes every pending out-movement of a request as one
// unit. Either all movements flip to Completed, or none do and the full
// shortfall list comes back. The status-gated update is the authoritative
// guard against double execution; the advisory and redis locks just shrink
// the conflict window.
func ExecuteStockOut(ctx context.Context, requestId int) (*ExecutionResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.ExecuteStockOut")
	defer span.End()

	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	role, _ := utils.GetActorRoleFromContext(ctx)
	if !models.UserRole(role).Elevated() {
		return nil, ErrNotElevated
	}

	// request must exist and belong to the business
	if _, err := utils.FetchModel[models.StockOutRequest](ctx, businessId, requestId); err != nil {
		return nil, errors.New("stock-out request not found")
	}

	release, err := acquireRedisExecutionLock(ctx, businessId, requestId)
	if err != nil {
		return nil, err
	}
	if release != nil {
		defer release()
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			ReleaseExecutionLock(tx, businessId)
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := AcquireExecutionLock(tx, businessId); err != nil {
		tx.Rollback()
		return nil, err
	}
	// GET_LOCK is connection-scoped: release on tx before it finalizes,
	// otherwise the lock stays pinned to the pooled connection.
	abort := func() {
		ReleaseExecutionLock(tx, businessId)
		tx.Rollback()
	}

	pending, err := models.FindPendingTransactionsForRequest(tx.WithContext(ctx), businessId, requestId)
	if err != nil {
		abort()
		return nil, err
	}
	if len(pending) == 0 {
		abort()
		return nil, ErrNothingToExecute
	}

	plan := BuildExecutionPlan(pending)

	available := map[StockKey]decimal.Decimal{}
	for key := range plan.Required {
		qty, err := models.AvailableStock(tx.WithContext(ctx), businessId, key.ItemId, key.WarehouseId)
		if err != nil {
			abort()
			return nil, err
		}
		available[key] = qty
	}

	if shortfalls := ValidateExecutionPlan(plan, available); len(shortfalls) > 0 {
		abort()
		return nil, &StockShortfallError{Shortfalls: shortfalls}
	}

	// single multi-row update, gated on Pending so a concurrent execution
	// cannot complete the same rows twice
	executedAt := time.Now()
	result := tx.WithContext(ctx).Model(&models.InventoryTransaction{}).
		Where("id IN ? AND status = ?", plan.TransactionIds, models.InventoryTransactionStatusPending).
		Updates(map[string]interface{}{
			"status":           models.InventoryTransactionStatusCompleted,
			"transaction_date": executedAt,
		})
	if result.Error != nil {
		abort()
		return nil, result.Error
	}
	if result.RowsAffected != int64(len(plan.TransactionIds)) {
		abort()
		return nil, ErrExecutionConflict
	}

	// mark the owning line items executed
	lineItemIds, err := lineItemIdsForTransactions(tx.WithContext(ctx), pending)
	if err != nil {
		abort()
		return nil, err
	}
	if len(lineItemIds) > 0 {
		if err := tx.WithContext(ctx).Model(&models.StockOutLineItem{}).
			Where("id IN ?", lineItemIds).
			Update("is_executed", true).Error; err != nil {
			abort()
			return nil, err
		}
	}

	executedQty := decimal.Zero
	for _, txn := range pending {
		executedQty = executedQty.Add(txn.Qty)
	}
	if err := models.SaveAuditAction(tx.WithContext(ctx), "stock_out_requests", requestId,
		models.AuditActionStatusChange, map[string]models.FieldChange{
			"executed_count": {Old: nil, New: len(plan.TransactionIds)},
			"executed_qty":   {Old: nil, New: executedQty.String()},
		}, "Stock-out executed"); err != nil {
		abort()
		return nil, err
	}

	ReleaseExecutionLock(tx, businessId)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	NotifyAsync(businessId, "stock_out.executed", map[string]interface{}{
		"stock_out_request_id": requestId,
		"executed_count":       len(plan.TransactionIds),
		"executed_qty":         executedQty.String(),
	})

	logger.WithField("request", fmt.Sprintf("request=%d count=%d", requestId, len(plan.TransactionIds))).
		Info("stock out executed")

	return &ExecutionResult{
		StockOutRequestId: requestId,
		ExecutedCount:     len(plan.TransactionIds),
		ExecutedQty:       executedQty,
		ExecutedAt:        executedAt,
	}, nil
}

func lineItemIdsForTransactions(tx *gorm.DB, transactions []models.InventoryTransaction) ([]int, error) {
	var approvalIds []int
	for _, txn := range transactions {
		if txn.StockOutApprovalId != nil {
			approvalIds = append(approvalIds, *txn.StockOutApprovalId)
		}
	}
	if len(approvalIds) == 0 {
		return nil, nil
	}
	var lineItemIds []int
	if err := tx.Model(&models.StockOutApproval{}).
		Where("id IN ?", approvalIds).
		Distinct().Pluck("stock_out_line_item_id", &lineItemIds).Error; err != nil {
		return nil, err
	}
	return utils.UniqueSlice(lineItemIds), nil
}
