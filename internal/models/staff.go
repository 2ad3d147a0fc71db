package models

import "time"

type Staff struct {
	ID           int64     `yaml:"id" json:"id"`
	PlaceID      int64     `yaml:"place_id" json:"placeId"`
	Name         string    `yaml:"name" json:"name"`
	Email        string    `yaml:"email" json:"email"`
	PasswordHash string    `yaml:"password_hash" json:"-"`
	Active       bool      `yaml:"active" json:"active"`
	CreatedAt    time.Time `yaml:"-" json:"createdAt"`
}

type Customer struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Email     string    `yaml:"email" json:"email"`
	CreatedAt time.Time `yaml:"-" json:"createdAt"`
}

// MenuItem price is in minor currency units.
type MenuItem struct {
	ID        int64     `yaml:"id" json:"id"`
	PlaceID   int64     `yaml:"place_id" json:"placeId"`
	Name      string    `yaml:"name" json:"name"`
	Price     int64     `yaml:"price" json:"price"`
	Available bool      `yaml:"available" json:"available"`
	CreatedAt time.Time `yaml:"-" json:"createdAt"`
}
