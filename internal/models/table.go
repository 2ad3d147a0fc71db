package models

import "time"

type TableStatus string

const (
	TableEmpty    TableStatus = "empty"
	TableOccupied TableStatus = "occupied"
	TableReserved TableStatus = "reserved"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableEmpty, TableOccupied, TableReserved:
		return true
	}
	return false
}

type Place struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	CreatedAt time.Time `yaml:"-" json:"createdAt"`
}

// Table is a physical seat group inside a place. Salt is the secret printed
// into the table's QR code and is never serialized to clients.
type Table struct {
	ID        int64       `yaml:"id" json:"id"`
	PlaceID   int64       `yaml:"place_id" json:"placeId"`
	Label     string      `yaml:"label" json:"label"`
	Capacity  int         `yaml:"capacity" json:"capacity"`
	X         float64     `yaml:"x" json:"x"`
	Y         float64     `yaml:"y" json:"y"`
	Width     float64     `yaml:"width" json:"width"`
	Height    float64     `yaml:"height" json:"height"`
	Status    TableStatus `yaml:"status" json:"status"`
	Disabled  bool        `yaml:"disabled" json:"disabled"`
	Salt      string      `yaml:"salt" json:"-"`
	Version   int64       `yaml:"-" json:"version"`
	CreatedAt time.Time   `yaml:"-" json:"createdAt"`
	UpdatedAt time.Time   `yaml:"-" json:"updatedAt"`
}
