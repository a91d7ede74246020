package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

type Sale struct {
	ID            int64           `db:"id" json:"id"`
	CreatedAt     time.Time       `db:"created_at" json:"timestamp"`
	Total         decimal.Decimal `db:"total" json:"total"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"paymentMethod"`
	Items         []SaleLineItem  `db:"-" json:"items"`
}

type SaleLineItem struct {
	ID        int64           `db:"id" json:"id"`
	SaleID    int64           `db:"sale_id" json:"saleId"`
	ProductID int64           `db:"product_id" json:"productId"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
}

type CartLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

type SaleRequest struct {
	Cart          []CartLine    `json:"cart"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type SaleReceipt struct {
	SaleID    int64           `json:"saleId"`
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

type SalesSummary struct {
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
	Count   int64           `db:"count" json:"count"`
}
