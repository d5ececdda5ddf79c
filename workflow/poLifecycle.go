package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/models"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
)

type CancelResult struct {
	PoNumber             string          `json:"po_number"`
	ReleasedAmountEusd   decimal.Decimal `json:"released_amount_eusd"`
	NewBalanceInHandEusd decimal.Decimal `json:"new_balance_in_hand_eusd"`
}

type UnlockResult struct {
	PoNumber  string                     `json:"po_number"`
	NewStatus models.PurchaseOrderStatus `json:"new_status"`
}

type UpdateResult struct {
	PoNumber string `json:"po_number"`
}

// CheckCancelPreconditions validates the status transition for cancel.
// Closed POs must be unlocked first.
func CheckCancelPreconditions(status models.PurchaseOrderStatus) error {
	switch status {
	case models.PurchaseOrderStatusCancelled:
		return ErrAlreadyCancelled
	case models.PurchaseOrderStatusClosed:
		return ErrCannotCancelClosed
	}
	return nil
}

func CheckUnlockPreconditions(status models.PurchaseOrderStatus) error {
	if status != models.PurchaseOrderStatusClosed {
		return ErrNotClosed
	}
	return nil
}

func CheckEditPreconditions(status models.PurchaseOrderStatus) error {
	switch status {
	case models.PurchaseOrderStatusClosed:
		return ErrCannotEditClosed
	case models.PurchaseOrderStatusCancelled:
		return ErrCannotEditCancelled
	}
	return nil
}

// ResolveUnlockedStatus recomputes status from current line aggregates. When
// the aggregates still resolve to Closed (nothing corrected yet) the status
// falls back to PartiallyReceived so the record becomes editable; a real
// correction will re-promote it to Closed on the next recompute.
func ResolveUnlockedStatus(po *models.PurchaseOrder) models.PurchaseOrderStatus {
	totalQty, invoicedQty, receivedQty := po.AggregateQuantities()
	status := models.ResolvePurchaseOrderStatus(totalQty, invoicedQty, receivedQty, false)
	if status == models.PurchaseOrderStatusClosed {
		return models.PurchaseOrderStatusPartiallyReceived
	}
	return status
}

// DiffHeaderFields compares the mutable header fields against the input.
// Nil input fields mean "leave unchanged". Returns the audit diff and the
// column updates; both empty when the update is a no-op.
func DiffHeaderFields(po *models.PurchaseOrder, input *models.PurchaseOrderHeaderInput) (map[string]models.FieldChange, map[string]interface{}) {
	changes := map[string]models.FieldChange{}
	updates := map[string]interface{}{}

	if input.SupplierId != nil && *input.SupplierId != po.SupplierId {
		changes["supplier_id"] = models.FieldChange{Old: po.SupplierId, New: *input.SupplierId}
		updates["supplier_id"] = *input.SupplierId
	}
	if input.Notes != nil && *input.Notes != po.Notes {
		changes["notes"] = models.FieldChange{Old: po.Notes, New: *input.Notes}
		updates["notes"] = *input.Notes
	}
	if input.ExpectedDeliveryDate != nil && (po.ExpectedDeliveryDate == nil || !input.ExpectedDeliveryDate.Equal(*po.ExpectedDeliveryDate)) {
		changes["expected_delivery_date"] = models.FieldChange{Old: po.ExpectedDeliveryDate, New: *input.ExpectedDeliveryDate}
		updates["expected_delivery_date"] = *input.ExpectedDeliveryDate
	}
	if input.SignerName != nil && *input.SignerName != po.SignerName {
		changes["signer_name"] = models.FieldChange{Old: po.SignerName, New: *input.SignerName}
		updates["signer_name"] = *input.SignerName
	}
	if input.CounterSignerName != nil && *input.CounterSignerName != po.CounterSignerName {
		changes["counter_signer_name"] = models.FieldChange{Old: po.CounterSignerName, New: *input.CounterSignerName}
		updates["counter_signer_name"] = *input.CounterSignerName
	}
	return changes, updates
}

func requireElevated(ctx context.Context) (string, int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", 0, errors.New("business id is required")
	}
	actorId, _ := utils.GetActorIdFromContext(ctx)
	role, _ := utils.GetActorRoleFromContext(ctx)
	if !models.UserRole(role).Elevated() {
		return "", 0, ErrNotElevated
	}
	return businessId, actorId, nil
}

// CancelPurchaseOrder cancels a PO, releases its committed amount from the
// owning QMHQ's budget and reports the new balance in hand.
func CancelPurchaseOrder(ctx context.Context, poId int, reason string) (*CancelResult, error) {
	db := config.GetDB()

	businessId, actorId, err := requireElevated(ctx)
	if err != nil {
		return nil, err
	}

	po, err := utils.FetchModel[models.PurchaseOrder](ctx, businessId, poId)
	if err != nil {
		return nil, errors.New("purchase order not found")
	}
	if err := CheckCancelPreconditions(po.CurrentStatus); err != nil {
		return nil, err
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	cancelledAt := time.Now()
	// gated on current status so a concurrent cancel/close cannot be overwritten
	result := tx.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("id = ? AND business_id = ? AND current_status NOT IN ?", poId, businessId,
			[]models.PurchaseOrderStatus{models.PurchaseOrderStatusCancelled, models.PurchaseOrderStatusClosed}).
		Updates(map[string]interface{}{
			"current_status":      models.PurchaseOrderStatusCancelled,
			"cancellation_reason": reason,
			"cancelled_at":        cancelledAt,
			"cancelled_by":        actorId,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrAlreadyCancelled
	}

	if err := models.SaveAuditAction(tx.WithContext(ctx), "purchase_orders", poId,
		models.AuditActionCancel, map[string]models.FieldChange{
			"current_status": {Old: string(po.CurrentStatus), New: string(models.PurchaseOrderStatusCancelled)},
		}, reason); err != nil {
		tx.Rollback()
		return nil, err
	}

	// cancelled POs drop out of the commitment sum
	if _, err := models.RecalculatePoCommitted(tx.WithContext(ctx), businessId, po.QmhqId); err != nil {
		tx.Rollback()
		return nil, err
	}

	var qmhq models.QMHQ
	if err := tx.WithContext(ctx).
		Where("id = ? AND business_id = ?", po.QmhqId, businessId).
		Take(&qmhq).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	NotifyAsync(businessId, "purchase_order.cancelled", map[string]interface{}{
		"purchase_order_id": poId,
		"po_number":         po.OrderNumber,
	})

	return &CancelResult{
		PoNumber:             po.OrderNumber,
		ReleasedAmountEusd:   po.TotalAmountEusd,
		NewBalanceInHandEusd: qmhq.Budget().BalanceInHandEusd,
	}, nil
}

// UnlockPurchaseOrder reopens a closed PO for corrections.
func UnlockPurchaseOrder(ctx context.Context, poId int) (*UnlockResult, error) {
	db := config.GetDB()

	businessId, _, err := requireElevated(ctx)
	if err != nil {
		return nil, err
	}

	po, err := utils.FetchModel[models.PurchaseOrder](ctx, businessId, poId, "Details")
	if err != nil {
		return nil, errors.New("purchase order not found")
	}
	if err := CheckUnlockPreconditions(po.CurrentStatus); err != nil {
		return nil, err
	}

	newStatus := ResolveUnlockedStatus(po)

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	result := tx.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("id = ? AND business_id = ? AND current_status = ?", poId, businessId,
			models.PurchaseOrderStatusClosed).
		Update("current_status", newStatus)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrNotClosed
	}

	if err := models.SaveAuditStatusChange(tx.WithContext(ctx), "purchase_orders", poId,
		string(models.PurchaseOrderStatusClosed), string(newStatus),
		"unlocked for corrections"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	NotifyAsync(businessId, "purchase_order.unlocked", map[string]interface{}{
		"purchase_order_id": poId,
		"po_number":         po.OrderNumber,
		"new_status":        string(newStatus),
	})

	return &UnlockResult{PoNumber: po.OrderNumber, NewStatus: newStatus}, nil
}

// UpdatePurchaseOrder edits only the mutable header fields. Quantities,
// totals and currency never change here.
func UpdatePurchaseOrder(ctx context.Context, poId int, input *models.PurchaseOrderHeaderInput) (*UpdateResult, error) {
	db := config.GetDB()

	businessId, _, err := requireElevated(ctx)
	if err != nil {
		return nil, err
	}

	po, err := utils.FetchModel[models.PurchaseOrder](ctx, businessId, poId)
	if err != nil {
		return nil, errors.New("purchase order not found")
	}
	if err := CheckEditPreconditions(po.CurrentStatus); err != nil {
		return nil, err
	}

	if input.SupplierId != nil {
		if err := utils.ValidateResourceId[models.Supplier](ctx, businessId, *input.SupplierId); err != nil {
			return nil, errors.New("supplier not found")
		}
	}

	changes, updates := DiffHeaderFields(po, input)
	if len(changes) == 0 {
		// nothing changed, no audit entry either
		return &UpdateResult{PoNumber: po.OrderNumber}, nil
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("id = ? AND business_id = ?", poId, businessId).
		Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := models.SaveAuditUpdate(tx.WithContext(ctx), "purchase_orders", poId, changes, ""); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &UpdateResult{PoNumber: po.OrderNumber}, nil
}
