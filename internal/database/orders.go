package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tableside/internal/models"
)

const orderColumns = `id, table_id, place_id, customer_id, COALESCE(guest_session_id, ''), total_price, status, payment_type, note, version, created_at, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var customerID sql.NullInt64
	err := row.Scan(
		&o.ID, &o.TableID, &o.PlaceID, &customerID, &o.GuestSessionID, &o.TotalPrice,
		&o.Status, &o.PaymentType, &o.Note, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		id := customerID.Int64
		o.CustomerID = &id
	}
	return o, nil
}

// CreateOrder inserts the order and its lines in one transaction.
func (db *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	var guestSessionID any
	if order.GuestSessionID != "" {
		guestSessionID = order.GuestSessionID
	}

	result, err := tx.ExecContext(ctx, `INSERT INTO orders (
                table_id, place_id, customer_id, guest_session_id, total_price,
                status, payment_type, note, version, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		order.TableID,
		order.PlaceID,
		order.CustomerID,
		guestSessionID,
		order.TotalPrice,
		order.Status,
		order.PaymentType,
		order.Note,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_lines (order_id, menu_item_id, name, unit_price, quantity, discount)
                                         VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order line insert: %w", err)
	}
	defer stmt.Close()

	for i := range order.Lines {
		line := &order.Lines[i]
		res, err := stmt.ExecContext(ctx, id, line.MenuItemID, line.Name, line.UnitPrice, line.Quantity, line.Discount)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
		lineID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get order line id: %w", err)
		}
		line.ID = lineID
		line.OrderID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	order.ID = id
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

// GetOrder returns the order with its lines.
func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	row := db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err, "order", id)
	}

	lines, err := db.orderLines(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[id]
	return order, nil
}

// GetTableOrders returns all orders of a table, newest first, with lines.
func (db *DB) GetTableOrders(ctx context.Context, tableID int64) ([]*models.Order, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE table_id = ? ORDER BY created_at DESC, id DESC`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list table orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*models.Order
		ids    []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	lines, err := db.orderLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Lines = lines[o.ID]
	}
	return orders, nil
}

func (db *DB) orderLines(ctx context.Context, orderIDs []int64) (map[int64][]models.OrderLine, error) {
	out := make(map[int64][]models.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, menu_item_id, name, unit_price, quantity, discount
           FROM order_lines WHERE order_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.MenuItemID, &l.Name, &l.UnitPrice, &l.Quantity, &l.Discount); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

// UpdateOrderStatusWithVersion moves the order only if nobody changed it since fromVersion.
// An empty payment type keeps the stored one.
func (db *DB) UpdateOrderStatusWithVersion(
	ctx context.Context,
	id, fromVersion int64,
	status models.OrderStatus,
	payment models.PaymentType,
) error {
	query := `UPDATE orders
                 SET status = ?,
                     payment_type = CASE WHEN ? = '' THEN payment_type ELSE ? END,
                     version = version + 1,
                     updated_at = ?
               WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, payment, payment, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CountOpenOrders counts non-terminal orders at a table.
func (db *DB) CountOpenOrders(ctx context.Context, tableID int64) (int, error) {
	open := models.OpenOrderStatuses()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(open)), ",")
	args := []any{tableID}
	for _, s := range open {
		args = append(args, s)
	}

	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE table_id = ? AND status IN (`+placeholders+`)`, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open orders: %w", err)
	}
	return count, nil
}
