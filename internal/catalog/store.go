// Package catalog owns product records. Products are never removed; a
// soft delete marks them inactive and every read filters them out.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
	"retailpos/m/internal/database"
	"retailpos/m/internal/validation"
)

const productColumns = `id, name, category, sale_price, cost, stock, product_type, description, status, barcode`

// Store implements the product catalog on top of a shared database handle.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a catalog store.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create inserts an active product and returns its id.
func (s *Store) Create(ctx context.Context, in domain.ProductInput) (int64, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	if err := checkMoney("salePrice", in.SalePrice); err != nil {
		return 0, err
	}
	if err := checkMoney("cost", in.Cost); err != nil {
		return 0, err
	}

	barcode := normalizeBarcode(in.Barcode)
	if barcode != nil {
		taken, err := s.barcodeTaken(ctx, *barcode, 0)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, apperr.Validation("barcode %q is already in use", *barcode)
		}
	}

	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`INSERT INTO products
		(name, category, sale_price, cost, stock, product_type, description, status, barcode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		strings.TrimSpace(in.Name), strings.TrimSpace(in.Category), *in.SalePrice, *in.Cost, *in.Stock,
		strings.TrimSpace(in.Type), in.Description, domain.ProductActive, barcode,
	).Scan(&id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, apperr.Validation("barcode is already in use")
		}
		s.logger.Error("failed to create product", slog.String("name", in.Name), slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created", slog.Int64("product_id", id), slog.String("name", in.Name))
	return id, nil
}

// Get returns an active product by id.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ? AND status = ?`), id, domain.ProductActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product %d not found", id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetByBarcode returns the active product carrying code.
func (s *Store) GetByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("barcode is required")
	}
	var p domain.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE barcode = ? AND status = ?`), code, domain.ProductActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no product with barcode %q", code)
		}
		return nil, fmt.Errorf("failed to get product by barcode: %w", err)
	}
	return &p, nil
}

// Search returns active products whose name contains pattern, ignoring case.
func (s *Store) Search(ctx context.Context, pattern string) ([]domain.Product, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, apperr.Validation("search pattern is required")
	}
	like := "%" + escapeLike(strings.ToLower(pattern)) + "%"
	products := []domain.Product{}
	err := s.db.SelectContext(ctx, &products, s.db.Rebind(`SELECT `+productColumns+` FROM products
		WHERE LOWER(name) LIKE ? ESCAPE '\' AND status = ? ORDER BY name, id`), like, domain.ProductActive)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// ListActive returns every active product ordered by name.
func (s *Store) ListActive(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	err := s.db.SelectContext(ctx, &products, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE status = ? ORDER BY name, id`), domain.ProductActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Update writes only the fields present in patch and returns the result.
// An empty barcode clears it.
func (s *Store) Update(ctx context.Context, id int64, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.Empty() {
		return nil, apperr.Validation("at least one field is required")
	}
	if err := validation.Struct(patch); err != nil {
		return nil, err
	}
	if err := checkMoney("salePrice", patch.SalePrice); err != nil {
		return nil, err
	}
	if err := checkMoney("cost", patch.Cost); err != nil {
		return nil, err
	}
	// Unknown or inactive ids are reported before any field checks against
	// other products.
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Name != nil {
		set("name", strings.TrimSpace(*patch.Name))
	}
	if patch.Category != nil {
		set("category", strings.TrimSpace(*patch.Category))
	}
	if patch.SalePrice != nil {
		set("sale_price", *patch.SalePrice)
	}
	if patch.Cost != nil {
		set("cost", *patch.Cost)
	}
	if patch.Stock != nil {
		set("stock", *patch.Stock)
	}
	if patch.Type != nil {
		set("product_type", strings.TrimSpace(*patch.Type))
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Barcode != nil {
		barcode := normalizeBarcode(patch.Barcode)
		if barcode != nil {
			taken, err := s.barcodeTaken(ctx, *barcode, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperr.Validation("barcode %q is already in use", *barcode)
			}
		}
		set("barcode", barcode)
	}

	args = append(args, id, domain.ProductActive)
	query := s.db.Rebind(`UPDATE products SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Validation("barcode is already in use")
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, apperr.NotFound("product %d not found", id)
	}

	return s.Get(ctx, id)
}

// SoftDelete marks an active product inactive. Deleting an unknown or
// already inactive product is reported as not found.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE products SET status = ? WHERE id = ? AND status = ?`),
		domain.ProductInactive, id, domain.ProductActive)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("product %d not found", id)
	}
	s.logger.Info("product deactivated", slog.Int64("product_id", id))
	return nil
}

// LockForSale reads an active product inside tx. On PostgreSQL the row stays
// locked until tx ends; SQLite serializes whole transactions instead.
func (s *Store) LockForSale(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ? AND status = ?`
	if supportsRowLocks(tx.DriverName()) {
		query += ` FOR UPDATE`
	}
	var p domain.Product
	if err := tx.GetContext(ctx, &p, tx.Rebind(query), id, domain.ProductActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product %d not found", id)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", id, err)
	}
	return &p, nil
}

// DecrementStock removes qty units from an active product inside tx. It
// reports false, without error, when the product no longer has qty units.
func (s *Store) DecrementStock(ctx context.Context, tx *sqlx.Tx, id, qty int64) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("quantity must be greater than zero")
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE products SET stock = stock - ?
		WHERE id = ? AND status = ? AND stock >= ?`), qty, id, domain.ProductActive, qty)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock for product %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows == 1, nil
}

// barcodeTaken checks every product, active or not, except excludeID.
func (s *Store) barcodeTaken(ctx context.Context, barcode string, excludeID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM products WHERE barcode = ? AND id <> ?)`), barcode, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check barcode: %w", err)
	}
	return exists, nil
}

func checkMoney(field string, v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return apperr.Validation("%s must not be negative", field)
	}
	return nil
}

func normalizeBarcode(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func supportsRowLocks(driver string) bool {
	return driver == "pgx" || driver == "postgres"
}
