// Package seed imports an initial product catalog from CSV.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
)

// ProductCreator is the catalog operation the loader needs.
type ProductCreator interface {
	Create(ctx context.Context, in domain.ProductInput) (int64, error)
}

// productRow is one CSV line. Numbers stay strings so a bad cell skips its
// row instead of failing the whole file.
type productRow struct {
	Name        string `csv:"name"`
	Category    string `csv:"category"`
	SalePrice   string `csv:"sale_price"`
	Cost        string `csv:"cost"`
	Stock       string `csv:"stock"`
	Type        string `csv:"type"`
	Description string `csv:"description"`
	Barcode     string `csv:"barcode"`
}

// Result counts what a load did.
type Result struct {
	Inserted int
	Skipped  int
}

// LoadProducts reads the CSV at path and creates every valid row. Rows that
// fail validation, including barcodes already in the catalog, are logged and
// skipped.
func LoadProducts(ctx context.Context, products ProductCreator, path string, logger *slog.Logger) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("unable to open product catalog %s: %w", path, err)
	}
	defer file.Close()
	return Load(ctx, products, file, logger)
}

// Load is LoadProducts over an open reader.
func Load(ctx context.Context, products ProductCreator, r io.Reader, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var rows []*productRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return Result{}, fmt.Errorf("unable to read product catalog: %w", err)
	}

	var res Result
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		// Line 1 is the header.
		line := i + 2
		in, err := row.input()
		if err == nil {
			_, err = products.Create(ctx, in)
		}
		if err != nil {
			if !apperr.Is(err, apperr.KindValidation) {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			logger.Warn("skipping product row", slog.Int("line", line), slog.String("name", row.Name), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		res.Inserted++
	}

	logger.Info("seeded product catalog", slog.Int("inserted", res.Inserted), slog.Int("skipped", res.Skipped))
	return res, nil
}

func (row *productRow) input() (domain.ProductInput, error) {
	in := domain.ProductInput{
		Name:     row.Name,
		Category: row.Category,
		Type:     row.Type,
	}
	price, err := parseMoney("sale_price", row.SalePrice)
	if err != nil {
		return in, err
	}
	cost, err := parseMoney("cost", row.Cost)
	if err != nil {
		return in, err
	}
	stock, err := strconv.ParseInt(strings.TrimSpace(row.Stock), 10, 64)
	if err != nil {
		return in, apperr.Validation("stock %q is not a whole number", row.Stock)
	}
	in.SalePrice, in.Cost, in.Stock = &price, &cost, &stock

	if d := strings.TrimSpace(row.Description); d != "" {
		in.Description = &d
	}
	if b := strings.TrimSpace(row.Barcode); b != "" {
		in.Barcode = &b
	}
	return in, nil
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, apperr.Validation("%s %q is not a number", field, raw)
	}
	return d, nil
}
