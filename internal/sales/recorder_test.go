package sales

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
	"retailpos/m/internal/catalog"
	"retailpos/m/internal/testutil"
)

type fixture struct {
	db       *sqlx.DB
	catalog  *catalog.Store
	recorder *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	store := catalog.NewStore(db, nil)
	return &fixture{db: db, catalog: store, recorder: NewRecorder(db, store, nil)}
}

func (f *fixture) product(t *testing.T, name, price string, stock int64) int64 {
	t.Helper()
	salePrice := decimal.RequireFromString(price)
	cost := salePrice.Div(decimal.NewFromInt(2))
	id, err := f.catalog.Create(context.Background(), domain.ProductInput{
		Name:      name,
		Category:  "abarrotes",
		SalePrice: &salePrice,
		Cost:      &cost,
		Stock:     &stock,
		Type:      "unidad",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) stock(t *testing.T, id int64) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, f.db.Get(&stock, `SELECT stock FROM products WHERE id = ?`, id))
	return stock
}

func (f *fixture) assertNoSales(t *testing.T) {
	t.Helper()
	assert.Equal(t, 0, testutil.Count(t, f.db, "sales"), "sales")
	assert.Equal(t, 0, testutil.Count(t, f.db, "sale_line_items"), "sale_line_items")
}

func TestRecordComputesTotalFromLivePrices(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 10, 14, 9, 30, 0, 123456789, time.UTC)
	f.recorder.now = func() time.Time { return fixed }

	rice := f.product(t, "Arroz", "23.50", 10)
	beans := f.product(t, "Frijol", "31.10", 4)

	receipt, err := f.recorder.Record(context.Background(), domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: rice, Quantity: 2},
			{ProductID: beans, Quantity: 3},
		},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	want := decimal.RequireFromString("140.30")
	assert.True(t, want.Equal(receipt.Total), "total %s", receipt.Total)
	assert.True(t, fixed.Truncate(time.Microsecond).Equal(receipt.Timestamp))

	sale, err := f.recorder.Get(context.Background(), receipt.SaleID)
	require.NoError(t, err)
	assert.True(t, want.Equal(sale.Total))
	assert.Equal(t, domain.PaymentCash, sale.PaymentMethod)
	assert.True(t, receipt.Timestamp.Equal(sale.CreatedAt), "stored %s", sale.CreatedAt)
	require.Len(t, sale.Items, 2)

	sum := decimal.Zero
	for _, item := range sale.Items {
		assert.Equal(t, receipt.SaleID, item.SaleID)
		assert.True(t, item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)).Equal(item.Subtotal))
		sum = sum.Add(item.Subtotal)
	}
	assert.True(t, want.Equal(sum))

	assert.Equal(t, int64(8), f.stock(t, rice))
	assert.Equal(t, int64(1), f.stock(t, beans))
}

func TestRecordSnapshotsUnitPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, "Café", "80", 10)

	receipt, err := f.recorder.Record(ctx, domain.SaleRequest{
		Cart:          []domain.CartLine{{ProductID: id, Quantity: 1}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(95)
	_, err = f.catalog.Update(ctx, id, domain.ProductPatch{SalePrice: &newPrice})
	require.NoError(t, err)

	sale, err := f.recorder.Get(ctx, receipt.SaleID)
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	assert.True(t, decimal.NewFromInt(80).Equal(sale.Items[0].UnitPrice))
}

func TestRecordStockScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, "Leche", "26", 5)
	req := domain.SaleRequest{Cart: []domain.CartLine{{ProductID: id, Quantity: 3}}, PaymentMethod: domain.PaymentCash}

	_, err := f.recorder.Record(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.stock(t, id))

	_, err = f.recorder.Record(ctx, req)
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInsufficientStock, e.Kind)
	assert.Equal(t, []int64{id}, e.ProductIDs)
	assert.Equal(t, int64(2), f.stock(t, id))
	assert.Equal(t, 1, testutil.Count(t, f.db, "sales"))
}

func TestRecordInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	plenty := f.product(t, "Sal", "9", 100)
	scarce := f.product(t, "Azúcar", "30", 1)

	_, err := f.recorder.Record(context.Background(), domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: plenty, Quantity: 5},
			{ProductID: scarce, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCash,
	})
	require.Error(t, err)
	e, _ := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.KindInsufficientStock, e.Kind)
	assert.Equal(t, []int64{scarce}, e.ProductIDs)

	f.assertNoSales(t)
	assert.Equal(t, int64(100), f.stock(t, plenty))
	assert.Equal(t, int64(1), f.stock(t, scarce))
}

func TestRecordMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, "Huevo", "3.5", 4)

	_, err := f.recorder.Record(context.Background(), domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: id, Quantity: 3},
			{ProductID: id, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCash,
	})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock), "3+2 exceeds 4: %v", err)
	assert.Equal(t, int64(4), f.stock(t, id))

	receipt, err := f.recorder.Record(context.Background(), domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: id, Quantity: 1},
			{ProductID: id, Quantity: 3},
		},
		PaymentMethod: domain.PaymentTransfer,
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(14).Equal(receipt.Total))
	assert.Zero(t, f.stock(t, id))

	sale, err := f.recorder.Get(context.Background(), receipt.SaleID)
	require.NoError(t, err)
	assert.Len(t, sale.Items, 2, "one line item per cart line")
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, "Pan", "5", 10)

	cases := map[string]domain.SaleRequest{
		"empty cart":      {PaymentMethod: domain.PaymentCash},
		"unknown payment": {Cart: []domain.CartLine{{ProductID: id, Quantity: 1}}, PaymentMethod: "bitcoin"},
		"missing payment": {Cart: []domain.CartLine{{ProductID: id, Quantity: 1}}},
		"zero quantity":   {Cart: []domain.CartLine{{ProductID: id, Quantity: 0}}, PaymentMethod: domain.PaymentCash},
		"negative qty":    {Cart: []domain.CartLine{{ProductID: id, Quantity: -2}}, PaymentMethod: domain.PaymentCash},
		"missing product": {Cart: []domain.CartLine{{Quantity: 1}}, PaymentMethod: domain.PaymentCash},
		"quantity overflow": {Cart: []domain.CartLine{
			{ProductID: id, Quantity: math.MaxInt64/2 + 1},
			{ProductID: id, Quantity: math.MaxInt64/2 + 1},
		}, PaymentMethod: domain.PaymentCash},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.recorder.Record(context.Background(), req)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
	f.assertNoSales(t)
	assert.Equal(t, int64(10), f.stock(t, id))
}

func TestRecordRejectsUnknownAndInactiveProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.product(t, "Aceite", "45", 10)
	retired := f.product(t, "Manteca", "20", 10)
	require.NoError(t, f.catalog.SoftDelete(ctx, retired))

	_, err := f.recorder.Record(ctx, domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: active, Quantity: 1},
			{ProductID: retired, Quantity: 1},
			{ProductID: 9999, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
	})
	require.Error(t, err)
	e, _ := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.KindNotFound, e.Kind)
	assert.Equal(t, []int64{retired, 9999}, e.ProductIDs)

	f.assertNoSales(t)
	assert.Equal(t, int64(10), f.stock(t, active))
}

// failingLedger delegates to the real catalog but fails the decrement of
// one product, after the header and line items have been written.
type failingLedger struct {
	StockLedger
	failID int64
}

func (l failingLedger) DecrementStock(ctx context.Context, tx *sqlx.Tx, id, qty int64) (bool, error) {
	if id == l.failID {
		return false, errors.New("storage fault")
	}
	return l.StockLedger.DecrementStock(ctx, tx, id, qty)
}

func TestRecordRollsBackOnStorageFault(t *testing.T) {
	f := newFixture(t)
	first := f.product(t, "Té", "12", 10)
	second := f.product(t, "Miel", "60", 10)
	recorder := NewRecorder(f.db, failingLedger{StockLedger: f.catalog, failID: second}, nil)

	_, err := recorder.Record(context.Background(), domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: first, Quantity: 2},
			{ProductID: second, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCard,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransaction), "got %v", err)

	f.assertNoSales(t)
	assert.Equal(t, int64(10), f.stock(t, first), "first decrement must be rolled back")
	assert.Equal(t, int64(10), f.stock(t, second))
}

func TestRecordCanceledContext(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, "Agua", "10", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.recorder.Record(ctx, domain.SaleRequest{
		Cart:          []domain.CartLine{{ProductID: id, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	assert.True(t, apperr.Is(err, apperr.KindTransaction), "got %v", err)
	f.assertNoSales(t)
	assert.Equal(t, int64(3), f.stock(t, id))
}

func TestRecordConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, "Última pieza", "99", 1)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		shortage int
		other    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.recorder.Record(context.Background(), domain.SaleRequest{
				Cart:          []domain.CartLine{{ProductID: id, Quantity: 1}},
				PaymentMethod: domain.PaymentCash,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case apperr.Is(err, apperr.KindInsufficientStock):
				shortage++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, success)
	assert.Equal(t, callers-1, shortage)
	assert.Zero(t, f.stock(t, id))
	assert.Equal(t, 1, testutil.Count(t, f.db, "sales"))
}
