package domain

import "github.com/shopspring/decimal"

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Category    string          `db:"category" json:"category"`
	SalePrice   decimal.Decimal `db:"sale_price" json:"salePrice"`
	Cost        decimal.Decimal `db:"cost" json:"cost"`
	Stock       int64           `db:"stock" json:"stock"`
	Type        string          `db:"product_type" json:"type"`
	Description *string         `db:"description" json:"description,omitempty"`
	Status      ProductStatus   `db:"status" json:"status"`
	Barcode     *string         `db:"barcode" json:"barcode,omitempty"`
}

// ProductInput is the payload for creating a product. Pointer fields let a
// zero stock or price be told apart from a missing one.
type ProductInput struct {
	Name        string           `json:"name" validate:"required"`
	Category    string           `json:"category" validate:"required"`
	SalePrice   *decimal.Decimal `json:"salePrice" validate:"required"`
	Cost        *decimal.Decimal `json:"cost" validate:"required"`
	Stock       *int64           `json:"stock" validate:"required,gte=0"`
	Type        string           `json:"type" validate:"required"`
	Description *string          `json:"description,omitempty"`
	Barcode     *string          `json:"barcode,omitempty"`
}

// ProductPatch carries a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name        *string          `json:"name,omitempty" validate:"omitnil,min=1"`
	Category    *string          `json:"category,omitempty" validate:"omitnil,min=1"`
	SalePrice   *decimal.Decimal `json:"salePrice,omitempty"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
	Stock       *int64           `json:"stock,omitempty" validate:"omitnil,gte=0"`
	Type        *string          `json:"type,omitempty" validate:"omitnil,min=1"`
	Description *string          `json:"description,omitempty"`
	Barcode     *string          `json:"barcode,omitempty"`
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Category == nil && p.SalePrice == nil && p.Cost == nil &&
		p.Stock == nil && p.Type == nil && p.Description == nil && p.Barcode == nil
}
