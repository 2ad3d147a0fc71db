package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tableside/internal/models"
)

func (db *DB) CreateStaff(ctx context.Context, staff *models.Staff) error {
	return createStaff(ctx, db, staff)
}

func createStaff(ctx context.Context, ex execer, staff *models.Staff) error {
	now := time.Now()
	query := `INSERT INTO staff (place_id, name, email, password_hash, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := ex.ExecContext(ctx, query,
		staff.PlaceID,
		staff.Name,
		strings.ToLower(strings.TrimSpace(staff.Email)),
		staff.PasswordHash,
		staff.Active,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("staff %s: %w", staff.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create staff: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	staff.ID = id
	staff.CreatedAt = now
	return nil
}

func (db *DB) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	query := `SELECT id, place_id, name, email, password_hash, active, created_at FROM staff WHERE id = ?`
	s := &models.Staff{}
	err := db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.PlaceID, &s.Name, &s.Email, &s.PasswordHash, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, "staff", id)
	}
	return s, nil
}

func (db *DB) GetStaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	query := `SELECT id, place_id, name, email, password_hash, active, created_at FROM staff WHERE email = ?`
	s := &models.Staff{}
	err := db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).
		Scan(&s.ID, &s.PlaceID, &s.Name, &s.Email, &s.PasswordHash, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, "staff", "by email")
	}
	return s, nil
}

func (db *DB) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return createCustomer(ctx, db, customer)
}

func createCustomer(ctx context.Context, ex execer, customer *models.Customer) error {
	now := time.Now()
	result, err := ex.ExecContext(ctx,
		`INSERT INTO customers (name, email, created_at) VALUES (?, ?, ?)`,
		customer.Name, customer.Email, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	customer.ID = id
	customer.CreatedAt = now
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	c := &models.Customer{}
	err := db.QueryRowContext(ctx, `SELECT id, name, COALESCE(email, ''), created_at FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return c, nil
}

func (db *DB) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	return createMenuItem(ctx, db, item)
}

func createMenuItem(ctx context.Context, ex execer, item *models.MenuItem) error {
	now := time.Now()
	result, err := ex.ExecContext(ctx,
		`INSERT INTO menu_items (place_id, name, price, available, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.PlaceID, item.Name, item.Price, item.Available, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create menu item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	return nil
}

func (db *DB) UpdateMenuItem(ctx context.Context, item *models.MenuItem) error {
	result, err := db.ExecContext(ctx,
		`UPDATE menu_items SET name = ?, price = ?, available = ? WHERE id = ?`,
		item.Name, item.Price, item.Available, item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update menu item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("menu item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

// GetMenuItemsByIDs returns the items that exist, keyed by id. Missing ids are simply absent.
func (db *DB) GetMenuItemsByIDs(ctx context.Context, ids []int64) (map[int64]*models.MenuItem, error) {
	items := make(map[int64]*models.MenuItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT id, place_id, name, price, available, created_at FROM menu_items WHERE id IN (` + placeholders + `)`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := &models.MenuItem{}
		if err := rows.Scan(&m.ID, &m.PlaceID, &m.Name, &m.Price, &m.Available, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items[m.ID] = m
	}
	return items, rows.Err()
}
