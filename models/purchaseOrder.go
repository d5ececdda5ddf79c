package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrder struct {
	ID                   int                         `gorm:"primary_key" json:"id"`
	BusinessId           string                      `gorm:"index;not null" json:"business_id"`
	QmhqId               int                         `gorm:"index;not null" json:"qmhq_id" binding:"required"`
	SupplierId           int                         `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderNumber          string                      `gorm:"size:255;not null" json:"order_number"`
	SequenceNo           decimal.Decimal             `gorm:"type:decimal(15);not null" json:"sequence_no"`
	OrderDate            time.Time                   `gorm:"not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time                  `gorm:"default:null" json:"expected_delivery_date"`
	CurrencyId           int                         `gorm:"not null" json:"currency_id"`
	ExchangeRate         decimal.Decimal             `gorm:"type:decimal(20,4);default:1" json:"exchange_rate"`
	TotalAmount          decimal.Decimal             `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	TotalAmountEusd      decimal.Decimal             `gorm:"type:decimal(20,4);default:0" json:"total_amount_eusd"`
	ApprovalStatus       PurchaseOrderApprovalStatus `gorm:"type:enum('Pending','Approved');default:Pending" json:"approval_status"`
	CurrentStatus        PurchaseOrderStatus         `gorm:"type:enum('Not Started','Partially Invoiced','Awaiting Delivery','Partially Received','Closed','Cancelled');not null" json:"current_status"`
	CancellationReason   string                      `gorm:"type:text;default:null" json:"cancellation_reason"`
	CancelledAt          *time.Time                  `gorm:"default:null" json:"cancelled_at"`
	CancelledBy          *int                        `gorm:"default:null" json:"cancelled_by"`
	Notes                string                      `gorm:"type:text;default:null" json:"notes"`
	SignerName           string                      `gorm:"size:100;default:null" json:"signer_name"`
	CounterSignerName    string                      `gorm:"size:100;default:null" json:"counter_signer_name"`
	Details              []POLineItem                `json:"purchase_order_details"`
	CreatedAt            time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// POLineItem tracks ordered vs posted running totals. InvoicedQty and
// ReceivedQty only grow (invoice/receipt posting keeps them monotonic);
// over-receipt is a data-entry concern handled upstream, not here.
type POLineItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int             `gorm:"index" json:"item_id"`
	Name            string          `gorm:"size:100" json:"name" binding:"required"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty" binding:"required"`
	InvoicedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoiced_qty"`
	ReceivedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	UnitRate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_rate"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewPurchaseOrder struct {
	QmhqId               int             `json:"qmhq_id" binding:"required"`
	SupplierId           int             `json:"supplier_id" binding:"required"`
	OrderDate            time.Time       `json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date"`
	CurrencyId           int             `json:"currency_id" binding:"required"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	Notes                string          `json:"notes"`
	SignerName           string          `json:"signer_name"`
	CounterSignerName    string          `json:"counter_signer_name"`
	Details              []NewPOLineItem `json:"details" binding:"required"`
}

type NewPOLineItem struct {
	ItemId   int             `json:"item_id"`
	Name     string          `json:"name" binding:"required"`
	Qty      decimal.Decimal `json:"qty" binding:"required"`
	UnitRate decimal.Decimal `json:"unit_rate"`
}

// PurchaseOrderHeaderInput carries the only fields the update path may touch.
// Quantities, totals and currency never change through here.
type PurchaseOrderHeaderInput struct {
	SupplierId           *int       `json:"supplier_id"`
	Notes                *string    `json:"notes"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	SignerName           *string    `json:"signer_name"`
	CounterSignerName    *string    `json:"counter_signer_name"`
}

// ResolvePurchaseOrderStatus derives PO status from line item aggregates.
// Deterministic and re-derivable at any time from the four inputs; the audit
// trail exists for observability, not for correctness of current state.
//
// Precedence, highest first:
//   - cancelled wins regardless of quantities
//   - invoiced == 0                          -> Not Started
//   - 0 < invoiced < total                   -> Partially Invoiced
//   - invoiced >= total && received == 0     -> Awaiting Delivery
//   - 0 < received < total                   -> Partially Received
//   - received >= total (total > 0)          -> Closed
//
// total == 0 can never reach Closed; such an order parks at Awaiting Delivery
// once anything is invoiced.
func ResolvePurchaseOrderStatus(totalQty, invoicedQty, receivedQty decimal.Decimal, isCancelled bool) PurchaseOrderStatus {
	if isCancelled {
		return PurchaseOrderStatusCancelled
	}
	if invoicedQty.IsZero() {
		return PurchaseOrderStatusNotStarted
	}
	if invoicedQty.LessThan(totalQty) {
		return PurchaseOrderStatusPartiallyInvoiced
	}
	if receivedQty.IsZero() {
		return PurchaseOrderStatusAwaitingDelivery
	}
	if receivedQty.LessThan(totalQty) {
		return PurchaseOrderStatusPartiallyReceived
	}
	if totalQty.IsPositive() {
		return PurchaseOrderStatusClosed
	}
	return PurchaseOrderStatusAwaitingDelivery
}

// AggregateQuantities sums ordered/invoiced/received across line items.
func (po *PurchaseOrder) AggregateQuantities() (totalQty, invoicedQty, receivedQty decimal.Decimal) {
	for _, detail := range po.Details {
		totalQty = totalQty.Add(detail.Qty)
		invoicedQty = invoicedQty.Add(detail.InvoicedQty)
		receivedQty = receivedQty.Add(detail.ReceivedQty)
	}
	return totalQty, invoicedQty, receivedQty
}

func (po *PurchaseOrder) ResolveStatus() PurchaseOrderStatus {
	totalQty, invoicedQty, receivedQty := po.AggregateQuantities()
	return ResolvePurchaseOrderStatus(totalQty, invoicedQty, receivedQty, po.CurrentStatus == PurchaseOrderStatusCancelled)
}

func (po PurchaseOrder) GetId() int {
	return po.ID
}

func (po PurchaseOrder) GetCursor() string {
	return po.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

func (input NewPurchaseOrder) validate(ctx context.Context, businessId string) error {

	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return errors.New("supplier not found")
	}
	qmhq, err := utils.FetchModel[QMHQ](ctx, businessId, input.QmhqId)
	if err != nil {
		return errors.New("qmhq line not found")
	}
	if qmhq.RouteType != RouteTypePO {
		return errors.New("qmhq line is not routed to purchase order procurement")
	}
	if len(input.Details) == 0 {
		return errors.New("at least one line item is required")
	}
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return errors.New("line item qty must be positive")
		}
		if detail.ItemId != 0 {
			if err := utils.ValidateResourceId[Item](ctx, businessId, detail.ItemId); err != nil {
				return errors.New("item not found")
			}
		}
	}
	return nil
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	exchangeRate := input.ExchangeRate
	if exchangeRate.IsZero() {
		exchangeRate = decimal.NewFromInt(1)
	}

	var details []POLineItem
	var totalAmount decimal.Decimal
	for _, item := range input.Details {
		amount := item.Qty.Mul(item.UnitRate)
		details = append(details, POLineItem{
			ItemId:   item.ItemId,
			Name:     item.Name,
			Qty:      item.Qty,
			UnitRate: item.UnitRate,
			Amount:   amount,
		})
		totalAmount = totalAmount.Add(amount)
	}

	purchaseOrder := PurchaseOrder{
		BusinessId:           businessId,
		QmhqId:               input.QmhqId,
		SupplierId:           input.SupplierId,
		OrderDate:            input.OrderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		CurrencyId:           input.CurrencyId,
		ExchangeRate:         exchangeRate,
		TotalAmount:          totalAmount,
		TotalAmountEusd:      totalAmount.Mul(exchangeRate),
		ApprovalStatus:       PurchaseOrderApprovalStatusPending,
		CurrentStatus:        PurchaseOrderStatusNotStarted,
		Notes:                input.Notes,
		SignerName:           input.SignerName,
		CounterSignerName:    input.CounterSignerName,
		Details:              details,
	}

	tx := db.Begin()
	// IMPORTANT: always rollback on early-return or panic to avoid leaking DB locks
	// (leaked transactions are a common cause of MySQL 1205 lock wait timeouts).
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[PurchaseOrder](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	purchaseOrder.SequenceNo = decimal.NewFromInt(seqNo)
	purchaseOrder.OrderNumber = "PO-" + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := SaveAuditCreate(tx.WithContext(ctx), "purchase_orders", purchaseOrder.ID,
		&purchaseOrder, "Purchase order "+purchaseOrder.OrderNumber+" created"); err != nil {
		tx.Rollback()
		return nil, err
	}

	// Committed budget grows as soon as a live PO exists on the line.
	if _, err := RecalculatePoCommitted(tx.WithContext(ctx), businessId, input.QmhqId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
}

type PurchaseOrderConnection struct {
	Edges    []*PurchaseOrderEdge `json:"edges"`
	PageInfo *PageInfo            `json:"pageInfo"`
}

type PurchaseOrderEdge Edge[PurchaseOrder]

func PaginatePurchaseOrders(ctx context.Context,
	limit *int,
	after *string,
	status *string,
	qmhqId *int,
) (*PurchaseOrderConnection, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	if qmhqId != nil && *qmhqId > 0 {
		dbCtx = dbCtx.Where("qmhq_id = ?", *qmhqId)
	}

	pageSize := 20
	if limit != nil && *limit > 0 {
		pageSize = *limit
	}
	edges, pageInfo, err := FetchPageCompositeCursor[PurchaseOrder](dbCtx, pageSize, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection PurchaseOrderConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		poEdge := PurchaseOrderEdge(edge)
		connection.Edges = append(connection.Edges, &poEdge)
	}

	return &connection, nil
}

func GetPurchaseOrdersByQmhq(ctx context.Context, qmhqId int) ([]*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*PurchaseOrder
	err := db.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND qmhq_id = ?", businessId, qmhqId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RecomputePurchaseOrderStatus re-derives the status from current line item
// aggregates and persists it when it differs. Returns the derived status.
// Cancelled orders are left untouched (cancel is its own path).
func RecomputePurchaseOrderStatus(tx *gorm.DB, po *PurchaseOrder) (PurchaseOrderStatus, error) {
	if po.CurrentStatus == PurchaseOrderStatusCancelled {
		return PurchaseOrderStatusCancelled, nil
	}

	if len(po.Details) == 0 {
		if err := tx.Where("purchase_order_id = ?", po.ID).Find(&po.Details).Error; err != nil {
			return "", err
		}
	}

	totalQty, invoicedQty, receivedQty := po.AggregateQuantities()
	derived := ResolvePurchaseOrderStatus(totalQty, invoicedQty, receivedQty, false)
	if derived == po.CurrentStatus {
		return derived, nil
	}

	if err := tx.Model(&PurchaseOrder{}).
		Where("business_id = ? AND id = ?", po.BusinessId, po.ID).
		Update("current_status", derived).Error; err != nil {
		return "", err
	}
	po.CurrentStatus = derived
	return derived, nil
}

type POLineProgress struct {
	LineItemId int             `json:"line_item_id" binding:"required"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
}

// RecordPurchaseOrderInvoice posts invoiced quantities against line items and
// re-derives the status. Quantities are additive and must be positive so the
// running totals stay monotonic.
func RecordPurchaseOrderInvoice(ctx context.Context, poId int, lines []POLineProgress) (*PurchaseOrder, error) {
	return recordLineProgress(ctx, poId, lines, "invoiced_qty")
}

// RecordPurchaseOrderReceipt posts received quantities, same contract as
// RecordPurchaseOrderInvoice.
func RecordPurchaseOrderReceipt(ctx context.Context, poId int, lines []POLineProgress) (*PurchaseOrder, error) {
	return recordLineProgress(ctx, poId, lines, "received_qty")
}

func recordLineProgress(ctx context.Context, poId int, lines []POLineProgress, column string) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if len(lines) == 0 {
		return nil, errors.New("at least one line is required")
	}
	for _, line := range lines {
		if !line.Qty.IsPositive() {
			return nil, errors.New("posted qty must be positive")
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	var po PurchaseOrder
	if err := tx.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND id = ?", businessId, poId).
		First(&po).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if po.CurrentStatus == PurchaseOrderStatusCancelled {
		tx.Rollback()
		return nil, errors.New("cannot post against a cancelled purchase order")
	}
	if po.CurrentStatus == PurchaseOrderStatusClosed {
		tx.Rollback()
		return nil, errors.New("cannot post against a closed purchase order; unlock it first")
	}

	lineById := make(map[int]*POLineItem, len(po.Details))
	for i := range po.Details {
		lineById[po.Details[i].ID] = &po.Details[i]
	}

	previousStatus := po.CurrentStatus
	for _, line := range lines {
		detail, ok := lineById[line.LineItemId]
		if !ok {
			tx.Rollback()
			return nil, fmt.Errorf("line item %d does not belong to purchase order %d", line.LineItemId, poId)
		}
		if err := tx.WithContext(ctx).Model(&POLineItem{}).
			Where("id = ?", detail.ID).
			Update(column, gorm.Expr(column+" + ?", line.Qty)).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if column == "invoiced_qty" {
			detail.InvoicedQty = detail.InvoicedQty.Add(line.Qty)
		} else {
			detail.ReceivedQty = detail.ReceivedQty.Add(line.Qty)
		}
	}

	derived, err := RecomputePurchaseOrderStatus(tx.WithContext(ctx), &po)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if derived != previousStatus {
		if err := SaveAuditStatusChange(tx.WithContext(ctx), "purchase_orders", po.ID,
			string(previousStatus), string(derived), ""); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &po, nil
}
