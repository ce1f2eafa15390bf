package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema setup failed: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return adapter, db
}

func seedProduct(t *testing.T, adapter *MySQLAdapter, name string, price int64, stock int) domain.Product {
	p := domain.Product{
		ID:       "test-product-" + uuid.NewString()[:8],
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
		IsActive: true,
	}
	if err := adapter.SaveProduct(context.Background(), p); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return p
}

func newTestOrder(ownerID string, lines ...domain.LineItem) domain.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return domain.Order{
		ID:          "test-order-" + uuid.NewString(),
		Owner:       domain.Customer{ID: ownerID, Name: "Asha", Email: "asha@example.com"},
		Items:       lines,
		ItemsTotal:  total,
		DeliveryFee: decimal.NewFromInt(50),
		GrandTotal:  total.Add(decimal.NewFromInt(50)),
		ShippingAddress: domain.ShippingAddress{
			Name: "Asha", Phone: "9999999999", PostalCode: "560001",
			Line: "12 MG Road", City: "Bengaluru", State: "KA",
		},
		PaymentMethod:     domain.PaymentMethodOnline,
		PaymentStatus:     domain.PaymentPending,
		FulfillmentStatus: domain.FulfillmentPlaced,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func lineFor(p domain.Product, qty int) domain.LineItem {
	return domain.LineItem{ProductID: p.ID, ProductName: p.Name, Quantity: qty, UnitPrice: p.Price}
}

func TestPlaceOrder_Success(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	ctx := context.Background()

	a := seedProduct(t, adapter, "Paracetamol", 100, 10)
	b := seedProduct(t, adapter, "Bandage", 50, 5)

	order := newTestOrder("test-user", lineFor(a, 2), lineFor(b, 1))
	if err := adapter.PlaceOrder(ctx, order); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	got, err := adapter.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got == nil {
		t.Fatal("order not found in database")
	}
	if len(got.Items) != 2 || got.Items[0].ProductID != a.ID || got.Items[1].ProductID != b.ID {
		t.Errorf("unexpected items: %+v", got.Items)
	}
	if !got.GrandTotal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected grand total 300, got %s", got.GrandTotal)
	}

	var stock int
	db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, a.ID).Scan(&stock)
	if stock != 8 {
		t.Errorf("expected stock 8, got %d", stock)
	}
	db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, b.ID).Scan(&stock)
	if stock != 4 {
		t.Errorf("expected stock 4, got %d", stock)
	}
}

func TestPlaceOrder_InsufficientStockRollsBack(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	ctx := context.Background()

	a := seedProduct(t, adapter, "Paracetamol", 100, 10)
	b := seedProduct(t, adapter, "Bandage", 50, 0)

	order := newTestOrder("test-user", lineFor(a, 2), lineFor(b, 1))
	err := adapter.PlaceOrder(ctx, order)

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.ProductName != "Bandage" || stockErr.Available != 0 {
		t.Errorf("unexpected shortfall: %+v", stockErr)
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id = ?`, order.ID).Scan(&count)
	if count != 0 {
		t.Error("order must not persist after a failed decrement")
	}

	var stock int
	db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, a.ID).Scan(&stock)
	if stock != 10 {
		t.Errorf("expected first decrement rolled back to 10, got %d", stock)
	}
}

func TestPlaceOrder_InactiveProduct(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, adapter, "Discontinued", 10, 10)
	p.IsActive = false
	if err := adapter.SaveProduct(ctx, p); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err := adapter.PlaceOrder(ctx, newTestOrder("test-user", lineFor(p, 1)))
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got: %v", err)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)

	p, err := adapter.GetProduct(context.Background(), "nonexistent-product")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected nil for nonexistent product")
	}
}

func TestListOrders_NewestFirstAndFiltered(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, adapter, "Paracetamol", 100, 10)
	owner := "test-user-" + uuid.NewString()[:8]

	older := newTestOrder(owner, lineFor(p, 1))
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := newTestOrder(owner, lineFor(p, 1))

	for _, o := range []domain.Order{older, newer} {
		if err := adapter.PlaceOrder(ctx, o); err != nil {
			t.Fatalf("PlaceOrder failed: %v", err)
		}
	}

	mine, err := adapter.ListOrdersByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListOrdersByOwner failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != newer.ID || mine[1].ID != older.ID {
		t.Fatalf("expected newest first, got %d orders", len(mine))
	}

	if err := adapter.UpdateFulfillmentStatus(ctx, newer.ID, domain.FulfillmentPlaced, domain.FulfillmentShipped); err != nil {
		t.Fatalf("UpdateFulfillmentStatus failed: %v", err)
	}

	shipped, err := adapter.ListOrders(ctx, domain.OrderFilter{FulfillmentStatus: domain.FulfillmentShipped})
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	found := false
	for _, o := range shipped {
		if o.FulfillmentStatus != domain.FulfillmentShipped {
			t.Errorf("filter leaked order %s in %s", o.ID, o.FulfillmentStatus)
		}
		if o.ID == newer.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected shipped order in filtered listing")
	}
}

func TestUpdateStatus_OptimisticLock(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, adapter, "Paracetamol", 100, 10)
	order := newTestOrder("test-user", lineFor(p, 1))
	if err := adapter.PlaceOrder(ctx, order); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if err := adapter.UpdateFulfillmentStatus(ctx, order.ID, domain.FulfillmentPlaced, domain.FulfillmentPacked); err != nil {
		t.Fatalf("UpdateFulfillmentStatus failed: %v", err)
	}
	// stale from
	err := adapter.UpdateFulfillmentStatus(ctx, order.ID, domain.FulfillmentPlaced, domain.FulfillmentShipped)
	if !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got: %v", err)
	}

	if err := adapter.UpdatePaymentStatus(ctx, order.ID, domain.PaymentPaid); err != nil {
		t.Fatalf("UpdatePaymentStatus failed: %v", err)
	}
	err = adapter.UpdatePaymentStatus(ctx, order.ID, domain.PaymentFailed)
	if !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock for settled payment, got: %v", err)
	}

	got, _ := adapter.GetOrder(ctx, order.ID)
	if got.PaymentStatus != domain.PaymentPaid || got.FulfillmentStatus != domain.FulfillmentPacked {
		t.Errorf("unexpected final state: %s / %s", got.PaymentStatus, got.FulfillmentStatus)
	}
}

func TestStockDecrements_SortedAndMerged(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "prod-b", Quantity: 1},
		{ProductID: "prod-a", Quantity: 2},
		{ProductID: "prod-b", Quantity: 3},
	}

	got := stockDecrements(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 decrements, got %d", len(got))
	}
	if got[0].ProductID != "prod-a" || got[0].Quantity != 2 {
		t.Errorf("unexpected first decrement: %+v", got[0])
	}
	if got[1].ProductID != "prod-b" || got[1].Quantity != 4 {
		t.Errorf("unexpected second decrement: %+v", got[1])
	}
	if items[0].ProductID != "prod-b" || items[0].Quantity != 1 {
		t.Errorf("order lines must keep their client order, got %+v", items[0])
	}
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestRowsChanged(t *testing.T) {
	if err := rowsChanged(fakeResult{rows: 1}); err != nil {
		t.Errorf("expected nil, got: %v", err)
	}
	if err := rowsChanged(fakeResult{}); !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got: %v", err)
	}

	driverErr := errors.New("driver: bad connection")
	err := rowsChanged(fakeResult{err: driverErr})
	if !errors.Is(err, driverErr) || errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected the driver error, got: %v", err)
	}
}

func TestPlaceOrder_DuplicateProductLines(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	p := seedProduct(t, adapter, "Bandage", 50, 4)

	err := adapter.PlaceOrder(ctx, newTestOrder("test-user", lineFor(p, 2), lineFor(p, 3)))
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.Requested != 5 || stockErr.Available != 4 {
		t.Errorf("unexpected shortfall: %+v", stockErr)
	}

	order := newTestOrder("test-user", lineFor(p, 1), lineFor(p, 3))
	if err := adapter.PlaceOrder(ctx, order); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	got, _ := adapter.GetOrder(ctx, order.ID)
	if len(got.Items) != 2 || got.Items[0].Quantity != 1 || got.Items[1].Quantity != 3 {
		t.Errorf("expected both lines in client order, got %+v", got.Items)
	}
	after, _ := adapter.GetProduct(ctx, p.ID)
	if after.Stock != 0 {
		t.Errorf("expected stock 0, got %d", after.Stock)
	}
}
