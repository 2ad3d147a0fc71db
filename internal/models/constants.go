package models

import "time"

const (
	// DefaultSaltBytes is the number of random bytes behind a table salt (hex encoded).
	DefaultSaltBytes = 16

	// DefaultPasscodeLength length of the shared table passcode
	DefaultPasscodeLength = 6

	// DefaultGuestTokenTTL lifetime of a guest session and its token
	DefaultGuestTokenTTL = 30 * time.Minute

	// DefaultStaffTokenTTL lifetime of a staff bearer token
	DefaultStaffTokenTTL = 12 * time.Hour

	// DefaultJoinAttemptsLimit passcode attempts allowed per table per window
	DefaultJoinAttemptsLimit = 10

	// DefaultJoinAttemptsWindow window for DefaultJoinAttemptsLimit
	DefaultJoinAttemptsWindow = time.Minute

	// DefaultSubscriberBuffer queued notifications per staff connection before it is dropped
	DefaultSubscriberBuffer = 64
)

const (
	PasscodeLifetimeSession = "session"
	PasscodeLifetimeRolling = "rolling"
)
