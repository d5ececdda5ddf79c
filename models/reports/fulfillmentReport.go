package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bitbucket.org/mmdatafocus/quartermaster_backend/config"
	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// FulfillmentResponse is one stock-out line with its approval and execution
// progress, for the request fulfillment report.
type FulfillmentResponse struct {
	StockOutRequestId int             `json:"StockOutRequestId"`
	RequestNumber     string          `json:"RequestNumber"`
	LineItemId        int             `json:"LineItemId"`
	ItemId            int             `json:"ItemId"`
	ItemName          *string         `json:"ItemName,omitempty"`
	RequestedQty      decimal.Decimal `json:"RequestedQty"`
	L1ApprovedQty     decimal.Decimal `json:"L1ApprovedQty"`
	L2AssignedQty     decimal.Decimal `json:"L2AssignedQty"`
	RejectedQty       decimal.Decimal `json:"RejectedQty"`
	ExecutedQty       decimal.Decimal `json:"ExecutedQty"`
	IsExecuted        bool            `json:"IsExecuted"`
}

func GetFulfillmentReport(ctx context.Context, requestId *int) ([]*FulfillmentResponse, error) {

	sqlT := `
SELECT
    sor.id AS stock_out_request_id,
    sor.request_number,
    soli.id AS line_item_id,
    soli.item_id,
    items.name AS item_name,
    soli.requested_qty,
    COALESCE(appr.l1_approved_qty, 0) AS l1_approved_qty,
    COALESCE(appr.l2_assigned_qty, 0) AS l2_assigned_qty,
    COALESCE(appr.rejected_qty, 0) AS rejected_qty,
    COALESCE(exec_qty.executed_qty, 0) AS executed_qty,
    soli.is_executed
FROM
    stock_out_line_items AS soli
        JOIN
    stock_out_requests AS sor ON sor.id = soli.stock_out_request_id
        LEFT JOIN
    items ON items.id = soli.item_id
        LEFT JOIN
    (SELECT
        stock_out_line_item_id,
            SUM(CASE WHEN decision = 'Approved' AND layer = 'Quartermaster' THEN approved_qty ELSE 0 END) AS l1_approved_qty,
            SUM(CASE WHEN decision = 'Approved' AND layer = 'Admin' THEN approved_qty ELSE 0 END) AS l2_assigned_qty,
            SUM(CASE WHEN decision = 'Rejected' THEN approved_qty ELSE 0 END) AS rejected_qty
    FROM
        stock_out_approvals
    GROUP BY stock_out_line_item_id) AS appr ON appr.stock_out_line_item_id = soli.id
        LEFT JOIN
    (SELECT
        stock_out_approvals.stock_out_line_item_id,
            SUM(inventory_transactions.qty) AS executed_qty
    FROM
        inventory_transactions
    JOIN stock_out_approvals ON stock_out_approvals.id = inventory_transactions.stock_out_approval_id
    WHERE
        inventory_transactions.status = 'Completed'
            AND inventory_transactions.is_active = true
    GROUP BY stock_out_approvals.stock_out_line_item_id) AS exec_qty ON exec_qty.stock_out_line_item_id = soli.id
WHERE
    soli.business_id = @businessId
    {{- if .requestId }} AND sor.id = @requestId {{- end }}
ORDER BY sor.id , soli.id;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// generating sql from template
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"requestId": utils.DereferencePtr(requestId),
	})
	if err != nil {
		return nil, err
	}

	var records []*FulfillmentResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"requestId":  requestId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// WriteFulfillmentExcel streams the fulfillment report as an xlsx attachment.
func WriteFulfillmentExcel(ctx context.Context, w http.ResponseWriter, requestId *int) error {

	data, err := GetFulfillmentReport(ctx, requestId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "RequestNumber")
	f.SetCellValue(sheetName, "B1", "ItemName")
	f.SetCellValue(sheetName, "C1", "RequestedQty")
	f.SetCellValue(sheetName, "D1", "L1ApprovedQty")
	f.SetCellValue(sheetName, "E1", "L2AssignedQty")
	f.SetCellValue(sheetName, "F1", "RejectedQty")
	f.SetCellValue(sheetName, "G1", "ExecutedQty")
	f.SetCellValue(sheetName, "H1", "Executed")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, d.RequestNumber)
		f.SetCellValue(sheetName, "B"+row, utils.DereferencePtr(d.ItemName, ""))
		f.SetCellValue(sheetName, "C"+row, utils.FormatDecimal(d.RequestedQty))
		f.SetCellValue(sheetName, "D"+row, utils.FormatDecimal(d.L1ApprovedQty))
		f.SetCellValue(sheetName, "E"+row, utils.FormatDecimal(d.L2AssignedQty))
		f.SetCellValue(sheetName, "F"+row, utils.FormatDecimal(d.RejectedQty))
		f.SetCellValue(sheetName, "G"+row, utils.FormatDecimal(d.ExecutedQty))
		f.SetCellValue(sheetName, "H"+row, d.IsExecuted)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=fulfillment.xlsx")
	return f.Write(w)
}
