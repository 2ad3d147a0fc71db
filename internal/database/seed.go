package database

import (
	"context"
	"fmt"
	"os"

	"tableside/internal/models"

	"gopkg.in/yaml.v3"
)

// Seed is the bootstrap content for an empty entity store. Places, menus
// and staff are managed elsewhere; this file only primes a fresh install.
type Seed struct {
	Places    []models.Place    `yaml:"places"`
	Tables    []models.Table    `yaml:"tables"`
	MenuItems []models.MenuItem `yaml:"menu_items"`
	Customers []models.Customer `yaml:"customers"`
	Staff     []SeedStaff       `yaml:"staff"`
}

type SeedStaff struct {
	PlaceID  int64  `yaml:"place_id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// SeedHooks supplies the secrets the store does not generate itself.
type SeedHooks struct {
	HashPassword func(plain string) (string, error)
	NewSalt      func() (string, error)
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed Seed
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// ApplySeed loads seed into the store when it holds no places yet.
// It reports whether anything was written. The seed is applied in one
// transaction, so a failure leaves the store empty.
func (db *DB) ApplySeed(ctx context.Context, seed *Seed, hooks SeedHooks) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count places: %w", err)
	}
	if count > 0 {
		db.logger.Info().Int("places", count).Msg("entity store already populated, skipping seed")
		return false, nil
	}

	for i := range seed.Places {
		if err := createPlace(ctx, tx, &seed.Places[i]); err != nil {
			return false, err
		}
	}

	for i := range seed.Tables {
		t := &seed.Tables[i]
		if t.Salt == "" {
			if hooks.NewSalt == nil {
				return false, fmt.Errorf("table %q has no salt and no generator is configured", t.Label)
			}
			salt, err := hooks.NewSalt()
			if err != nil {
				return false, fmt.Errorf("generate salt for table %q: %w", t.Label, err)
			}
			t.Salt = salt
		}
		if err := createTable(ctx, tx, t); err != nil {
			return false, err
		}
	}

	for i := range seed.MenuItems {
		if err := createMenuItem(ctx, tx, &seed.MenuItems[i]); err != nil {
			return false, err
		}
	}

	for i := range seed.Customers {
		if err := createCustomer(ctx, tx, &seed.Customers[i]); err != nil {
			return false, err
		}
	}

	for _, s := range seed.Staff {
		if hooks.HashPassword == nil {
			return false, fmt.Errorf("staff %s: no password hasher configured", s.Email)
		}
		hash, err := hooks.HashPassword(s.Password)
		if err != nil {
			return false, fmt.Errorf("hash password for %s: %w", s.Email, err)
		}
		staff := &models.Staff{PlaceID: s.PlaceID, Name: s.Name, Email: s.Email, PasswordHash: hash, Active: true}
		if err := createStaff(ctx, tx, staff); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit seed: %w", err)
	}

	db.logger.Info().
		Int("places", len(seed.Places)).
		Int("tables", len(seed.Tables)).
		Int("menu_items", len(seed.MenuItems)).
		Int("staff", len(seed.Staff)).
		Msg("entity store seeded")
	return true, nil
}
