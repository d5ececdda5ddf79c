package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Precondition errors surfaced by PO lifecycle mutations and stock-out
// execution. Handlers map them to 4xx responses.
var (
	ErrNotElevated         = errors.New("operation requires an elevated role")
	ErrAlreadyCancelled    = errors.New("purchase order is already cancelled")
	ErrCannotCancelClosed  = errors.New("closed purchase orders cannot be cancelled")
	ErrNotClosed           = errors.New("purchase order is not closed")
	ErrCannotEditClosed    = errors.New("closed purchase orders cannot be edited")
	ErrCannotEditCancelled = errors.New("cancelled purchase orders cannot be edited")
	ErrNothingToExecute    = errors.New("no pending stock movements to execute")
	ErrExecutionConflict   = errors.New("stock movements were modified concurrently, retry execution")
)

// StockShortfall is one insufficient (item, warehouse) pair found during
// execution validation.
type StockShortfall struct {
	ItemId       int             `json:"item_id"`
	WarehouseId  int             `json:"warehouse_id"`
	RequiredQty  decimal.Decimal `json:"required_qty"`
	AvailableQty decimal.Decimal `json:"available_qty"`
}

// StockShortfallError reports every shortfall at once; execution never stops
// at the first insufficient line.
type StockShortfallError struct {
	Shortfalls []StockShortfall
}

func (e *StockShortfallError) Error() string {
	var b strings.Builder
	b.WriteString("insufficient stock:")
	for _, s := range e.Shortfalls {
		fmt.Fprintf(&b, " item %d warehouse %d needs %s has %s;",
			s.ItemId, s.WarehouseId, s.RequiredQty.String(), s.AvailableQty.String())
	}
	return strings.TrimSuffix(b.String(), ";")
}

// IsPreconditionError reports whether err is a caller mistake rather than an
// infrastructure failure.
func IsPreconditionError(err error) bool {
	var shortfall *StockShortfallError
	if errors.As(err, &shortfall) {
		return true
	}
	switch {
	case errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrCannotCancelClosed),
		errors.Is(err, ErrNotClosed),
		errors.Is(err, ErrCannotEditClosed),
		errors.Is(err, ErrCannotEditCancelled),
		errors.Is(err, ErrNothingToExecute):
		return true
	}
	return false
}
