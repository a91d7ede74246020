package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
)

// Filter bounds sale queries by creation time. From is inclusive, To is
// exclusive; nil leaves that side open.
type Filter struct {
	From *time.Time
	To   *time.Time
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.To.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Get returns one sale with its line items.
func (r *Recorder) Get(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := r.db.GetContext(ctx, &sale, r.db.Rebind(`SELECT id, created_at, total, payment_method FROM sales WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("sale %d not found", id)
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	items := []domain.SaleLineItem{}
	err = r.db.SelectContext(ctx, &items, r.db.Rebind(`SELECT id, sale_id, product_id, quantity, unit_price, subtotal
		FROM sale_line_items WHERE sale_id = ? ORDER BY id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sale items: %w", err)
	}
	sale.Items = items
	return &sale, nil
}

// List returns sales in the filter range, newest first, with line items.
func (r *Recorder) List(ctx context.Context, f Filter) ([]domain.Sale, error) {
	where, args := f.where()
	sales := []domain.Sale{}
	query := r.db.Rebind(`SELECT id, created_at, total, payment_method FROM sales` + where + ` ORDER BY created_at DESC, id DESC`)
	if err := r.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]int64, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
	}
	itemsQuery, itemsArgs, err := sqlx.In(`SELECT id, sale_id, product_id, quantity, unit_price, subtotal
		FROM sale_line_items WHERE sale_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sale items query: %w", err)
	}

	var rows []domain.SaleLineItem
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(itemsQuery), itemsArgs...); err != nil {
		return nil, fmt.Errorf("failed to load sale items: %w", err)
	}
	bySale := make(map[int64][]domain.SaleLineItem, len(sales))
	for _, row := range rows {
		bySale[row.SaleID] = append(bySale[row.SaleID], row)
	}
	for i := range sales {
		items := bySale[sales[i].ID]
		if items == nil {
			items = []domain.SaleLineItem{}
		}
		sales[i].Items = items
	}
	return sales, nil
}

// Summary totals revenue and counts sales in the filter range. Totals are
// summed as decimals rather than in SQL, where SQLite would use floats.
func (r *Recorder) Summary(ctx context.Context, f Filter) (*domain.SalesSummary, error) {
	where, args := f.where()
	var totals []decimal.Decimal
	if err := r.db.SelectContext(ctx, &totals, r.db.Rebind(`SELECT total FROM sales`+where), args...); err != nil {
		return nil, fmt.Errorf("failed to summarize sales: %w", err)
	}
	summary := &domain.SalesSummary{Revenue: decimal.Zero, Count: int64(len(totals))}
	for _, t := range totals {
		summary.Revenue = summary.Revenue.Add(t)
	}
	return summary, nil
}
