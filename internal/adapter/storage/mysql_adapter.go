package storage

import (
	"cmp"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

const orderColumns = `
	id, owner_id, owner_name, owner_email, items_total, delivery_fee, grand_total,
	ship_name, ship_phone, ship_postal_code, ship_line, ship_city, ship_state,
	payment_method, payment_status, fulfillment_status, created_at, updated_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the tables if they do not exist yet.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// SaveProduct inserts or replaces a catalog row. Catalog management lives
// elsewhere; this is for seeding.
func (m *MySQLAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, is_active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, NOW(3), NOW(3))
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), price = VALUES(price), stock = VALUES(stock),
			is_active = VALUES(is_active), version = version + 1, updated_at = NOW(3)`,
		p.ID, p.Name, p.Price, p.Stock, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, is_active, version, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.IsActive, &p.Version, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

// PlaceOrder writes the order, its items and every stock decrement in one
// transaction. A decrement that matches no row rolls the whole order back.
func (m *MySQLAdapter) PlaceOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	addr := order.ShippingAddress
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Owner.ID, order.Owner.Name, order.Owner.Email,
		order.ItemsTotal, order.DeliveryFee, order.GrandTotal,
		addr.Name, addr.Phone, addr.PostalCode, addr.Line, addr.City, addr.State,
		order.PaymentMethod, order.PaymentStatus, order.FulfillmentStatus,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	for _, item := range stockDecrements(order.Items) {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - ?, version = version + 1, updated_at = NOW(3)
			WHERE id = ? AND is_active = 1 AND stock >= ?`,
			item.Quantity, item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if rows == 0 {
			return stockShortfall(ctx, tx, item)
		}
	}

	return tx.Commit()
}

// stockDecrements merges lines for the same product and orders them by
// product id, so concurrent orders lock product rows in the same order.
func stockDecrements(items []domain.LineItem) []domain.LineItem {
	merged := make([]domain.LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	slices.SortFunc(merged, func(a, b domain.LineItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return merged
}

func stockShortfall(ctx context.Context, tx *sql.Tx, item domain.LineItem) error {
	var (
		name   string
		stock  int
		active bool
	)
	err := tx.QueryRowContext(ctx, `SELECT name, stock, is_active FROM products WHERE id = ?`, item.ProductID).
		Scan(&name, &stock, &active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
	}
	if err != nil {
		return fmt.Errorf("query product: %w", err)
	}
	return &domain.InsufficientStockError{
		ProductID:   item.ProductID,
		ProductName: name,
		Requested:   item.Quantity,
		Available:   stock,
	}
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	orders, err := m.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrdersByOwner(ctx context.Context, ownerID string) ([]domain.Order, error) {
	return m.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC`, ownerID)
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.FulfillmentStatus != "" {
		where = append(where, "fulfillment_status = ?")
		args = append(args, filter.FulfillmentStatus)
	}
	if filter.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	return m.queryOrders(ctx, query, args...)
}

func (m *MySQLAdapter) UpdateFulfillmentStatus(ctx context.Context, orderID string, from, to domain.FulfillmentStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET fulfillment_status = ?, updated_at = NOW(3)
		WHERE id = ? AND fulfillment_status = ?`,
		to, orderID, from,
	)
	if err != nil {
		return fmt.Errorf("update fulfillment status: %w", err)
	}

	return rowsChanged(result)
}

func (m *MySQLAdapter) UpdatePaymentStatus(ctx context.Context, orderID string, to domain.PaymentStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = ?, updated_at = NOW(3)
		WHERE id = ? AND payment_status = ?`,
		to, orderID, domain.PaymentPending,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	return rowsChanged(result)
}

// rowsChanged turns a conditional update that matched nothing into
// ErrOptimisticLock.
func rowsChanged(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		addr := &o.ShippingAddress
		if err := rows.Scan(
			&o.ID, &o.Owner.ID, &o.Owner.Name, &o.Owner.Email,
			&o.ItemsTotal, &o.DeliveryFee, &o.GrandTotal,
			&addr.Name, &addr.Phone, &addr.PostalCode, &addr.Line, &addr.City, &addr.State,
			&o.PaymentMethod, &o.PaymentStatus, &o.FulfillmentStatus,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if err := m.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MySQLAdapter) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		placeholders[i] = "?"
		args[i] = o.ID
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY order_id, line_no`, args...)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.LineItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}
