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

// QMHQ is one fulfillment line of a QMRL, routed to item issuance, direct
// expense, or purchase-order procurement. The running totals are maintained by
// RecalculatePoCommitted / RecalculateMoneyIn, the single authoritative
// implementation of that derivation.
type QMHQ struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	BusinessId           string          `gorm:"index;not null" json:"business_id"`
	QmrlId               int             `gorm:"index;not null" json:"qmrl_id" binding:"required"`
	LineNumber           string          `gorm:"size:255;not null" json:"line_number"`
	SequenceNo           decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	RouteType            RouteType       `gorm:"type:enum('Item','Expense','PO');not null" json:"route_type" binding:"required"`
	Description          string          `gorm:"type:text" json:"description"`
	ItemId               int             `gorm:"index;default:null" json:"item_id"`
	RequestedQty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"requested_qty"`
	AmountEusd           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_eusd"`
	TotalMoneyInEusd     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_money_in_eusd"`
	TotalPoCommittedEusd decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_po_committed_eusd"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewQmhq struct {
	QmrlId       int             `json:"qmrl_id" binding:"required"`
	RouteType    RouteType       `json:"route_type" binding:"required"`
	Description  string          `json:"description"`
	ItemId       int             `json:"item_id"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
	AmountEusd   decimal.Decimal `json:"amount_eusd"`
}

// MoneyInTransaction records funds received against a QMHQ line. Voided rows
// keep their identity but stop counting toward totals.
type MoneyInTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	QmhqId          int             `gorm:"index;not null" json:"qmhq_id" binding:"required"`
	AmountEusd      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_eusd"`
	TransactionDate time.Time       `gorm:"not null" json:"transaction_date"`
	IsVoided        *bool           `gorm:"not null;default:false" json:"is_voided"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AutoStatusInput carries the aggregated child-state flags the nine-value
// resolver needs. Callers assemble it from whatever store they have; the
// resolver itself never touches the database.
type AutoStatusInput struct {
	// item route
	AllLinesExecuted bool
	AnyLineItems     bool
	AnyApproval      bool
	// expense / po routes
	AmountEusd           decimal.Decimal
	TotalMoneyInEusd     decimal.Decimal
	TotalPoCommittedEusd decimal.Decimal
	AnyMoneyIn           bool
	AnyOpenPO            bool
}

// ResolveQmhqStatus maps per-route child state to the derived status.
// Priority is always done > processing > pending. This is a read-side
// projection only: nothing may branch business logic on it (it does not gate
// execution).
func ResolveQmhqStatus(route RouteType, in AutoStatusInput) QmhqStatus {
	switch route {
	case RouteTypeItem:
		if in.AnyLineItems && in.AllLinesExecuted {
			return QmhqStatusItemDone
		}
		if in.AnyApproval {
			return QmhqStatusItemProcessing
		}
		return QmhqStatusItemPending
	case RouteTypeExpense:
		if in.AmountEusd.Sub(in.TotalMoneyInEusd).LessThanOrEqual(decimal.Zero) {
			return QmhqStatusExpenseDone
		}
		if in.AnyMoneyIn {
			return QmhqStatusExpenseProcessing
		}
		return QmhqStatusExpensePending
	case RouteTypePO:
		fullyFunded := in.AmountEusd.Sub(in.TotalMoneyInEusd).LessThanOrEqual(decimal.Zero)
		fullyCommitted := in.TotalMoneyInEusd.Sub(in.TotalPoCommittedEusd).LessThanOrEqual(decimal.Zero)
		if fullyFunded && fullyCommitted {
			return QmhqStatusPoDone
		}
		if in.AnyOpenPO {
			return QmhqStatusPoProcessing
		}
		return QmhqStatusPoPending
	}
	return QmhqStatus("")
}

// BudgetSummary is the money view of one QMHQ line.
type BudgetSummary struct {
	AmountEusd           decimal.Decimal `json:"amount_eusd"`
	TotalMoneyInEusd     decimal.Decimal `json:"total_money_in_eusd"`
	TotalPoCommittedEusd decimal.Decimal `json:"total_po_committed_eusd"`
	BalanceInHandEusd    decimal.Decimal `json:"balance_in_hand_eusd"`
	YetToReceiveEusd     decimal.Decimal `json:"yet_to_receive_eusd"`
}

// Budget derives balance-in-hand and yet-to-receive from the line's running
// totals. It reads the post-recalculation values only; it never sums PO
// amounts itself (one source of truth).
func (q *QMHQ) Budget() BudgetSummary {
	return BudgetSummary{
		AmountEusd:           q.AmountEusd,
		TotalMoneyInEusd:     q.TotalMoneyInEusd,
		TotalPoCommittedEusd: q.TotalPoCommittedEusd,
		BalanceInHandEusd:    q.TotalMoneyInEusd.Sub(q.TotalPoCommittedEusd),
		YetToReceiveEusd:     q.AmountEusd.Sub(q.TotalMoneyInEusd),
	}
}

func (q QMHQ) GetId() int {
	return q.ID
}

func (q QMHQ) GetCursor() string {
	return q.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

// RecalculatePoCommitted rewrites total_po_committed_eusd from the sum of
// non-cancelled POs on the line and returns the new value. Runs inside the
// caller's transaction so a PO status change and its budget effect commit
// together.
func RecalculatePoCommitted(tx *gorm.DB, businessId string, qmhqId int) (decimal.Decimal, error) {
	var committed decimal.Decimal
	if err := tx.Model(&PurchaseOrder{}).
		Where("business_id = ? AND qmhq_id = ? AND current_status <> ?", businessId, qmhqId, PurchaseOrderStatusCancelled).
		Select("COALESCE(SUM(total_amount_eusd), 0)").
		Scan(&committed).Error; err != nil {
		return decimal.Zero, err
	}
	if err := tx.Model(&QMHQ{}).
		Where("business_id = ? AND id = ?", businessId, qmhqId).
		Update("total_po_committed_eusd", committed).Error; err != nil {
		return decimal.Zero, err
	}
	return committed, nil
}

// RecalculateMoneyIn rewrites total_money_in_eusd from non-voided money-in
// transactions, same contract as RecalculatePoCommitted.
func RecalculateMoneyIn(tx *gorm.DB, businessId string, qmhqId int) (decimal.Decimal, error) {
	var moneyIn decimal.Decimal
	if err := tx.Model(&MoneyInTransaction{}).
		Where("business_id = ? AND qmhq_id = ? AND is_voided = false", businessId, qmhqId).
		Select("COALESCE(SUM(amount_eusd), 0)").
		Scan(&moneyIn).Error; err != nil {
		return decimal.Zero, err
	}
	if err := tx.Model(&QMHQ{}).
		Where("business_id = ? AND id = ?", businessId, qmhqId).
		Update("total_money_in_eusd", moneyIn).Error; err != nil {
		return decimal.Zero, err
	}
	return moneyIn, nil
}

func (input NewQmhq) validate(ctx context.Context, businessId string) error {
	if !input.RouteType.IsValid() {
		return errors.New("invalid route type")
	}
	if err := utils.ValidateResourceId[QMRL](ctx, businessId, input.QmrlId); err != nil {
		return errors.New("qmrl not found")
	}
	if input.RouteType == RouteTypeItem {
		if input.ItemId == 0 {
			return errors.New("item route requires an item")
		}
		if err := utils.ValidateResourceId[Item](ctx, businessId, input.ItemId); err != nil {
			return errors.New("item not found")
		}
	}
	return nil
}

func CreateQmhq(ctx context.Context, input *NewQmhq) (*QMHQ, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	qmhq := QMHQ{
		BusinessId:   businessId,
		QmrlId:       input.QmrlId,
		RouteType:    input.RouteType,
		Description:  input.Description,
		ItemId:       input.ItemId,
		RequestedQty: input.RequestedQty,
		AmountEusd:   input.AmountEusd,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[QMHQ](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	qmhq.SequenceNo = decimal.NewFromInt(seqNo)
	qmhq.LineNumber = "QMHQ-" + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&qmhq).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := SaveAuditCreate(tx.WithContext(ctx), "qmhq", qmhq.ID, &qmhq,
		"Fulfillment line "+qmhq.LineNumber+" created"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &qmhq, nil
}

type QmhqConnection struct {
	Edges    []*QmhqEdge `json:"edges"`
	PageInfo *PageInfo   `json:"pageInfo"`
}

type QmhqEdge Edge[QMHQ]

func PaginateQmhq(ctx context.Context,
	limit *int,
	after *string,
	routeType *string,
	qmrlId *int,
) (*QmhqConnection, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if routeType != nil && *routeType != "" {
		dbCtx = dbCtx.Where("route_type = ?", *routeType)
	}
	if qmrlId != nil && *qmrlId > 0 {
		dbCtx = dbCtx.Where("qmrl_id = ?", *qmrlId)
	}

	pageSize := 20
	if limit != nil && *limit > 0 {
		pageSize = *limit
	}
	edges, pageInfo, err := FetchPageCompositeCursor[QMHQ](dbCtx, pageSize, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var connection QmhqConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		qmhqEdge := QmhqEdge(edge)
		connection.Edges = append(connection.Edges, &qmhqEdge)
	}

	return &connection, nil
}

func GetQmhq(ctx context.Context, id int) (*QMHQ, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[QMHQ](ctx, businessId, id)
}

// GetQmhqAutoStatus assembles the resolver input from child entities and
// returns the derived nine-value status.
func GetQmhqAutoStatus(ctx context.Context, id int) (QmhqStatus, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}
	qmhq, err := utils.FetchModel[QMHQ](ctx, businessId, id)
	if err != nil {
		return "", err
	}

	db := config.GetDB()
	in := AutoStatusInput{
		AmountEusd:           qmhq.AmountEusd,
		TotalMoneyInEusd:     qmhq.TotalMoneyInEusd,
		TotalPoCommittedEusd: qmhq.TotalPoCommittedEusd,
	}

	switch qmhq.RouteType {
	case RouteTypeItem:
		var lineCount, unexecutedCount, approvalCount int64
		if err := db.WithContext(ctx).Model(&StockOutLineItem{}).
			Where("business_id = ? AND qmhq_id = ?", businessId, id).
			Count(&lineCount).Error; err != nil {
			return "", err
		}
		if err := db.WithContext(ctx).Model(&StockOutLineItem{}).
			Where("business_id = ? AND qmhq_id = ? AND is_executed = false", businessId, id).
			Count(&unexecutedCount).Error; err != nil {
			return "", err
		}
		if err := db.WithContext(ctx).Model(&StockOutApproval{}).
			Joins("JOIN stock_out_line_items ON stock_out_line_items.id = stock_out_approvals.stock_out_line_item_id").
			Where("stock_out_line_items.business_id = ? AND stock_out_line_items.qmhq_id = ?", businessId, id).
			Count(&approvalCount).Error; err != nil {
			return "", err
		}
		in.AnyLineItems = lineCount > 0
		in.AllLinesExecuted = lineCount > 0 && unexecutedCount == 0
		in.AnyApproval = approvalCount > 0
	case RouteTypeExpense:
		var moneyInCount int64
		if err := db.WithContext(ctx).Model(&MoneyInTransaction{}).
			Where("business_id = ? AND qmhq_id = ? AND is_voided = false", businessId, id).
			Count(&moneyInCount).Error; err != nil {
			return "", err
		}
		in.AnyMoneyIn = moneyInCount > 0
	case RouteTypePO:
		var openPoCount int64
		if err := db.WithContext(ctx).Model(&PurchaseOrder{}).
			Where("business_id = ? AND qmhq_id = ? AND current_status <> ?", businessId, id, PurchaseOrderStatusCancelled).
			Count(&openPoCount).Error; err != nil {
			return "", err
		}
		in.AnyOpenPO = openPoCount > 0
	}

	return ResolveQmhqStatus(qmhq.RouteType, in), nil
}

// RecordMoneyIn posts a money-in transaction and recalculates the line total
// in the same transaction.
func RecordMoneyIn(ctx context.Context, qmhqId int, amountEusd decimal.Decimal, transactionDate time.Time, notes string) (*MoneyInTransaction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !amountEusd.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	if err := utils.ValidateResourceId[QMHQ](ctx, businessId, qmhqId); err != nil {
		return nil, errors.New("qmhq line not found")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	record := MoneyInTransaction{
		BusinessId:      businessId,
		QmhqId:          qmhqId,
		AmountEusd:      amountEusd,
		TransactionDate: transactionDate,
		IsVoided:        utils.NewFalse(),
		Notes:           notes,
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := RecalculateMoneyIn(tx.WithContext(ctx), businessId, qmhqId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := SaveAuditCreate(tx.WithContext(ctx), "money_in_transactions", record.ID, &record, ""); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &record, nil
}
