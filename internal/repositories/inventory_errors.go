package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock movements.
type InventoryErrorCode string

const (
	// InventoryErrorInsufficientStock indicates the requested quantity exceeds the stock on hand.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates a stock line referenced a missing product.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorInvalidLine indicates a non-positive quantity or empty product id.
	InventoryErrorInvalidLine InventoryErrorCode = "inventory_invalid_line"
)

// InventoryError reports which product a stock movement failed on.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Available int
	Requested int
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s (product %s)", e.Code, e.ProductID)
	if e.Code == InventoryErrorInsufficientStock {
		msg = fmt.Sprintf("%s: requested %d, available %d", msg, e.Requested, e.Available)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error for productID.
func NewInventoryError(code InventoryErrorCode, productID string, err error) *InventoryError {
	return &InventoryError{
		Code:      code,
		ProductID: productID,
		Err:       err,
	}
}
