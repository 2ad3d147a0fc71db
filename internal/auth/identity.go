package auth

import "time"

// Identity is the parsed bearer credential: either StaffIdentity or GuestIdentity.
type Identity interface {
	isIdentity()
}

type StaffIdentity struct {
	StaffID int64
	PlaceID int64
}

// GuestIdentity is bound to exactly one table for the lifetime of its session.
type GuestIdentity struct {
	SessionID string
	TableID   int64
	PlaceID   int64
	Passcode  string
	ExpiresAt time.Time
}

func (StaffIdentity) isIdentity() {}
func (GuestIdentity) isIdentity() {}
