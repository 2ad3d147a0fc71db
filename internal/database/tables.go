package database

import (
	"context"
	"fmt"
	"time"

	"tableside/internal/models"
)

const tableColumns = `id, place_id, label, capacity, x, y, width, height, status, disabled, salt, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(row rowScanner) (*models.Table, error) {
	t := &models.Table{}
	err := row.Scan(
		&t.ID, &t.PlaceID, &t.Label, &t.Capacity, &t.X, &t.Y, &t.Width, &t.Height,
		&t.Status, &t.Disabled, &t.Salt, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (db *DB) CreatePlace(ctx context.Context, place *models.Place) error {
	return createPlace(ctx, db, place)
}

func createPlace(ctx context.Context, ex execer, place *models.Place) error {
	now := time.Now()
	query := `INSERT INTO places (name, created_at) VALUES (?, ?)`
	args := []any{place.Name, now}
	if place.ID != 0 {
		query = `INSERT INTO places (id, name, created_at) VALUES (?, ?, ?)`
		args = append([]any{place.ID}, args...)
	}

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("place %d: %w", place.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create place: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	place.ID = id
	place.CreatedAt = now
	return nil
}

func (db *DB) GetPlace(ctx context.Context, id int64) (*models.Place, error) {
	p := &models.Place{}
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM places WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "place", id)
	}
	return p, nil
}

// CreateTable inserts a table. The caller supplies the initial salt.
func (db *DB) CreateTable(ctx context.Context, table *models.Table) error {
	return createTable(ctx, db, table)
}

func createTable(ctx context.Context, ex execer, table *models.Table) error {
	if table.Salt == "" {
		return fmt.Errorf("table %q: salt is required", table.Label)
	}
	if table.Status == "" {
		table.Status = models.TableEmpty
	}

	now := time.Now()
	query := `INSERT INTO tables (place_id, label, capacity, x, y, width, height, status, disabled, salt, version, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	result, err := ex.ExecContext(ctx, query,
		table.PlaceID, table.Label, table.Capacity,
		table.X, table.Y, table.Width, table.Height,
		table.Status, table.Disabled, table.Salt, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table %q: %w", table.Label, ErrDuplicate)
		}
		return fmt.Errorf("failed to create table: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	table.ID = id
	table.Version = 1
	table.CreatedAt = now
	table.UpdatedAt = now
	return nil
}

func (db *DB) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	row := db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = ?`, id)
	t, err := scanTable(row)
	if err != nil {
		return nil, notFound(err, "table", id)
	}
	return t, nil
}

// GetTableBySalt returns the table whose current salt matches, disabled or not.
func (db *DB) GetTableBySalt(ctx context.Context, salt string) (*models.Table, error) {
	row := db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM tables WHERE salt = ?`, salt)
	t, err := scanTable(row)
	if err != nil {
		return nil, notFound(err, "table", "by salt")
	}
	return t, nil
}

func (db *DB) GetPlaceTables(ctx context.Context, placeID int64) ([]*models.Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+tableColumns+` FROM tables WHERE place_id = ? ORDER BY label`, placeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// UpdateTableSalt swaps the salt in a single row update so only one salt is valid at a time.
func (db *DB) UpdateTableSalt(ctx context.Context, id int64, salt string) error {
	return db.updateTable(ctx, id, `salt = ?`, salt)
}

func (db *DB) UpdateTableStatus(ctx context.Context, id int64, status models.TableStatus) error {
	return db.updateTable(ctx, id, `status = ?`, status)
}

func (db *DB) SetTableDisabled(ctx context.Context, id int64, disabled bool) error {
	return db.updateTable(ctx, id, `disabled = ?`, disabled)
}

func (db *DB) updateTable(ctx context.Context, id int64, set string, value any) error {
	query := `UPDATE tables SET ` + set + `, version = version + 1, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, value, time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table %d: %w", id, ErrDuplicate)
		}
		return fmt.Errorf("failed to update table %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("table %d: %w", id, ErrNotFound)
	}
	return nil
}
