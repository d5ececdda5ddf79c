package models

// PurchaseOrderStatus is derived state: always recomputable from line item
// aggregates plus the cancelled flag (ResolvePurchaseOrderStatus). It is never
// written directly outside the cancel/unlock paths.
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusNotStarted        PurchaseOrderStatus = "Not Started"
	PurchaseOrderStatusPartiallyInvoiced PurchaseOrderStatus = "Partially Invoiced"
	PurchaseOrderStatusAwaitingDelivery  PurchaseOrderStatus = "Awaiting Delivery"
	PurchaseOrderStatusPartiallyReceived PurchaseOrderStatus = "Partially Received"
	PurchaseOrderStatusClosed            PurchaseOrderStatus = "Closed"
	PurchaseOrderStatusCancelled         PurchaseOrderStatus = "Cancelled"
)

type PurchaseOrderApprovalStatus string

const (
	PurchaseOrderApprovalStatusPending  PurchaseOrderApprovalStatus = "Pending"
	PurchaseOrderApprovalStatusApproved PurchaseOrderApprovalStatus = "Approved"
)

// RouteType tells how a QMHQ fulfillment line is routed.
type RouteType string

const (
	RouteTypeItem    RouteType = "Item"
	RouteTypeExpense RouteType = "Expense"
	RouteTypePO      RouteType = "PO"
)

func (r RouteType) IsValid() bool {
	switch r {
	case RouteTypeItem, RouteTypeExpense, RouteTypePO:
		return true
	}
	return false
}

// QmhqStatus is the nine-value derived status, {route} x {pending,processing,done}.
// Read-side projection only; business logic must never branch on it.
type QmhqStatus string

const (
	QmhqStatusItemPending       QmhqStatus = "Item Pending"
	QmhqStatusItemProcessing    QmhqStatus = "Item Processing"
	QmhqStatusItemDone          QmhqStatus = "Item Done"
	QmhqStatusExpensePending    QmhqStatus = "Expense Pending"
	QmhqStatusExpenseProcessing QmhqStatus = "Expense Processing"
	QmhqStatusExpenseDone       QmhqStatus = "Expense Done"
	QmhqStatusPoPending         QmhqStatus = "PO Pending"
	QmhqStatusPoProcessing      QmhqStatus = "PO Processing"
	QmhqStatusPoDone            QmhqStatus = "PO Done"
)

type MovementType string

const (
	MovementTypeInventoryIn  MovementType = "Inventory In"
	MovementTypeInventoryOut MovementType = "Inventory Out"
)

type InventoryTransactionStatus string

const (
	InventoryTransactionStatusPending   InventoryTransactionStatus = "Pending"
	InventoryTransactionStatusCompleted InventoryTransactionStatus = "Completed"
	InventoryTransactionStatusCancelled InventoryTransactionStatus = "Cancelled"
)

// ApprovalLayer: quartermaster (L1) approves quantities, admin (L2) assigns
// warehouses and triggers pending inventory transactions.
type ApprovalLayer string

const (
	ApprovalLayerQuartermaster ApprovalLayer = "Quartermaster"
	ApprovalLayerAdmin         ApprovalLayer = "Admin"
)

type ApprovalDecision string

const (
	ApprovalDecisionApproved ApprovalDecision = "Approved"
	ApprovalDecisionRejected ApprovalDecision = "Rejected"
)

type AuditAction string

const (
	AuditActionCreate           AuditAction = "CREATE"
	AuditActionUpdate           AuditAction = "UPDATE"
	AuditActionDelete           AuditAction = "DELETE"
	AuditActionStatusChange     AuditAction = "STATUS_CHANGE"
	AuditActionAssignmentChange AuditAction = "ASSIGNMENT_CHANGE"
	AuditActionVoid             AuditAction = "VOID"
	AuditActionApprove          AuditAction = "APPROVE"
	AuditActionClose            AuditAction = "CLOSE"
	AuditActionCancel           AuditAction = "CANCEL"
)

type UserRole string

const (
	UserRoleAdmin         UserRole = "Admin"
	UserRoleQuartermaster UserRole = "Quartermaster"
	UserRoleStaff         UserRole = "Staff"
)

// Elevated reports whether the role may run PO lifecycle mutations and
// stock-out execution.
func (r UserRole) Elevated() bool {
	return r == UserRoleAdmin
}

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleQuartermaster, UserRoleStaff:
		return true
	}
	return false
}
