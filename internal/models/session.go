package models

import "time"

// GuestSession is an anonymous table-scoped credential record. It is written
// once and lives in the session store until ExpiresAt.
type GuestSession struct {
	ID        string    `json:"id"`
	TableID   int64     `json:"table_id"`
	PlaceID   int64     `json:"place_id"`
	Passcode  string    `json:"passcode"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *GuestSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TableClaim marks the ordering context currently open at a table. Later
// guests join it by presenting Passcode.
type TableClaim struct {
	TableID   int64     `json:"table_id"`
	Passcode  string    `json:"passcode"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *TableClaim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
