// Package sales records checkouts. A sale header, its line items and the
// matching stock decrements are written in one transaction, so a failure at
// any step leaves no trace.
package sales

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
	"retailpos/m/internal/metrics"
)

// StockLedger is the part of the catalog a checkout needs. Both calls run
// inside the checkout transaction.
type StockLedger interface {
	LockForSale(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Product, error)
	DecrementStock(ctx context.Context, tx *sqlx.Tx, id, qty int64) (bool, error)
}

// Recorder records and reads sales.
type Recorder struct {
	db     *sqlx.DB
	stock  StockLedger
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *sqlx.DB, stock StockLedger, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, stock: stock, logger: logger, now: time.Now}
}

// Record validates the cart against live stock and prices, then writes the
// sale atomically. Prices always come from the catalog, never the caller.
func (r *Recorder) Record(ctx context.Context, req domain.SaleRequest) (receipt *domain.SaleReceipt, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(apperr.KindOf(err))
		}
		metrics.ObserveSale(result, time.Since(start))
	}()

	demand, order, err := aggregateCart(req)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Transaction("unable to start sale", err)
	}
	defer tx.Rollback()

	// Rows are locked in id order so concurrent carts cannot deadlock.
	lockOrder := slices.Clone(order)
	slices.Sort(lockOrder)

	prices := make(map[int64]decimal.Decimal, len(order))
	var missing, short []int64
	for _, id := range lockOrder {
		p, err := r.stock.LockForSale(ctx, tx, id)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				missing = append(missing, id)
				continue
			}
			return nil, apperr.Transaction("unable to read product stock", err)
		}
		prices[id] = p.SalePrice
		if p.Stock < demand[id] {
			short = append(short, id)
		}
	}
	if len(missing) > 0 {
		e := apperr.NotFound("products not found or inactive: %v", missing)
		e.ProductIDs = missing
		return nil, e
	}
	if len(short) > 0 {
		return nil, apperr.InsufficientStock(short)
	}

	total := decimal.Zero
	for _, line := range req.Cart {
		total = total.Add(prices[line.ProductID].Mul(decimal.NewFromInt(line.Quantity)))
	}

	// Postgres keeps microseconds; truncating here makes the receipt match
	// what is stored.
	createdAt := r.now().UTC().Truncate(time.Microsecond)

	var saleID int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO sales (created_at, total, payment_method) VALUES (?, ?, ?) RETURNING id`),
		createdAt, total, req.PaymentMethod).Scan(&saleID)
	if err != nil {
		return nil, apperr.Transaction("unable to record sale", err)
	}

	insertLine := tx.Rebind(`INSERT INTO sale_line_items (sale_id, product_id, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?)`)
	for _, line := range req.Cart {
		price := prices[line.ProductID]
		subtotal := price.Mul(decimal.NewFromInt(line.Quantity))
		if _, err := tx.ExecContext(ctx, insertLine, saleID, line.ProductID, line.Quantity, price, subtotal); err != nil {
			return nil, apperr.Transaction("unable to record sale line items", err)
		}
	}

	for _, id := range lockOrder {
		ok, err := r.stock.DecrementStock(ctx, tx, id, demand[id])
		if err != nil {
			return nil, apperr.Transaction("unable to update stock", err)
		}
		if !ok {
			// Another checkout took the stock between the read and the write.
			// Only this product is reported; the rest are not re-checked.
			return nil, apperr.InsufficientStock([]int64{id})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Transaction("unable to commit sale", err)
	}

	metrics.AddRevenue(string(req.PaymentMethod), total)
	r.logger.Info("sale recorded",
		slog.Int64("sale_id", saleID),
		slog.String("total", total.StringFixed(2)),
		slog.String("payment_method", string(req.PaymentMethod)),
		slog.Int("lines", len(req.Cart)),
	)

	return &domain.SaleReceipt{SaleID: saleID, Total: total, Timestamp: createdAt}, nil
}

// aggregateCart validates the request and sums quantities per product, so
// repeated lines for one product are checked against stock together. order
// keeps first-appearance order of product ids.
func aggregateCart(req domain.SaleRequest) (demand map[int64]int64, order []int64, err error) {
	if len(req.Cart) == 0 {
		return nil, nil, apperr.Validation("cart must contain at least one item")
	}
	if !req.PaymentMethod.Valid() {
		return nil, nil, apperr.Validation("paymentMethod must be one of cash, card, transfer")
	}

	demand = make(map[int64]int64, len(req.Cart))
	for i, line := range req.Cart {
		if line.ProductID <= 0 {
			return nil, nil, apperr.Validation("cart[%d]: productId is required", i)
		}
		if line.Quantity <= 0 {
			return nil, nil, apperr.Validation("cart[%d]: quantity must be greater than zero", i)
		}
		current, seen := demand[line.ProductID]
		if !seen {
			order = append(order, line.ProductID)
		}
		if current > math.MaxInt64-line.Quantity {
			return nil, nil, apperr.Validation("cart: total quantity for product %d is too large", line.ProductID)
		}
		demand[line.ProductID] = current + line.Quantity
	}
	return demand, order, nil
}
