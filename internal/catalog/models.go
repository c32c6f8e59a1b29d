package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type ProductStatus string

const (
	ProductActive       ProductStatus = "ACTIVE"
	ProductOutOfStock   ProductStatus = "OUT_OF_STOCK"
	ProductDiscontinued ProductStatus = "DISCONTINUED"
)

type Category struct {
	ID        string
	ParentID  *string
	Name      string
	Slug      string
	SortOrder int
	CreatedAt time.Time
}

// Product carries the three stock counters. At rest
// TotalStock == AvailableStock + ReservedStock; sold units leave TotalStock
// through stock confirmation and are counted in SoldCount.
type Product struct {
	ID                string
	SKU               string
	CategoryID        string
	Name              string
	Description       string
	ImageURL          string
	Price             decimal.Decimal
	Status            ProductStatus
	TotalStock        int
	AvailableStock    int
	ReservedStock     int
	SoldCount         int
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (p *Product) IsLowStock() bool {
	return p.AvailableStock <= p.LowStockThreshold
}

func (p *Product) Sellable() bool {
	return p.Status == ProductActive
}

// Shortfall describes a reservation that could not be satisfied.
type Shortfall struct {
	ProductID string
	Required  int
	Available int
}

// ShortfallError wraps ErrInsufficientStock with per-line detail.
type ShortfallError struct {
	Shortfall Shortfall
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: required %d, available %d",
		e.Shortfall.ProductID, e.Shortfall.Required, e.Shortfall.Available)
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }
