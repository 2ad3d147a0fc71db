package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"tableside/internal/database"
	"tableside/internal/domain"
	"tableside/internal/models"

	"github.com/rs/zerolog"
)

const saltAttempts = 3

// CredentialService owns table salts and the staff-facing table controls.
type CredentialService struct {
	repo      domain.Repository
	sessions  domain.SessionRepository
	notifier  domain.Notifier
	saltBytes int
	logger    *zerolog.Logger
}

func NewCredentialService(
	repo domain.Repository,
	sessions domain.SessionRepository,
	notifier domain.Notifier,
	saltBytes int,
	logger *zerolog.Logger,
) *CredentialService {
	if saltBytes <= 0 {
		saltBytes = models.DefaultSaltBytes
	}
	return &CredentialService{
		repo:      repo,
		sessions:  sessions,
		notifier:  notifier,
		saltBytes: saltBytes,
		logger:    logger,
	}
}

// ResolveBySalt finds the enabled table a QR code points at.
func (s *CredentialService) ResolveBySalt(ctx context.Context, salt string) (*models.Table, error) {
	if salt == "" {
		return nil, domain.NotFound("table not found")
	}
	table, err := s.repo.GetTableBySalt(ctx, salt)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.NotFound("table not found")
	}
	if err != nil {
		return nil, domain.Unknown(err, "failed to resolve table")
	}
	if table.Disabled {
		return nil, domain.NotFound("table not found")
	}
	return table, nil
}

// RegenerateSalt replaces the table's salt. Printed QR codes stop working;
// guest sessions already issued stay valid.
func (s *CredentialService) RegenerateSalt(ctx context.Context, caller domain.Caller, tableID int64) (string, error) {
	_, table, err := s.staffTable(ctx, caller, tableID)
	if err != nil {
		return "", err
	}

	for attempt := 1; ; attempt++ {
		salt, err := NewSalt(s.saltBytes)
		if err != nil {
			return "", domain.Unknown(err, "failed to generate salt")
		}
		err = s.repo.UpdateTableSalt(ctx, table.ID, salt)
		if errors.Is(err, database.ErrDuplicate) && attempt < saltAttempts {
			continue
		}
		if err != nil {
			return "", storeError(err, "table", table.ID)
		}
		s.logger.Info().Int64("table_id", table.ID).Msg("table salt regenerated")
		return salt, nil
	}
}

func (s *CredentialService) SetTableStatus(ctx context.Context, caller domain.Caller, tableID int64, status models.TableStatus) (*models.Table, error) {
	if !status.Valid() {
		return nil, domain.Validation("invalid table status %q", status)
	}
	_, table, err := s.staffTable(ctx, caller, tableID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTableStatus(ctx, table.ID, status); err != nil {
		return nil, storeError(err, "table", table.ID)
	}
	if status == models.TableEmpty {
		s.releaseClaim(ctx, table.ID)
	}

	updated, err := s.repo.GetTable(ctx, table.ID)
	if err != nil {
		return nil, storeError(err, "table", table.ID)
	}
	s.notifier.Notify(ctx, updated, models.NotificationTableStatusChanged,
		fmt.Sprintf("Table %s is now %s", updated.Label, updated.Status), nil)
	return updated, nil
}

// SetTableDisabled toggles scanning for a table. Disabling also ends the
// table's claim; sessions already issued fail their next check.
func (s *CredentialService) SetTableDisabled(ctx context.Context, caller domain.Caller, tableID int64, disabled bool) (*models.Table, error) {
	_, table, err := s.staffTable(ctx, caller, tableID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetTableDisabled(ctx, table.ID, disabled); err != nil {
		return nil, storeError(err, "table", table.ID)
	}
	if disabled {
		s.releaseClaim(ctx, table.ID)
	}

	updated, err := s.repo.GetTable(ctx, table.ID)
	if err != nil {
		return nil, storeError(err, "table", table.ID)
	}
	msg := fmt.Sprintf("Table %s enabled", updated.Label)
	if disabled {
		msg = fmt.Sprintf("Table %s disabled", updated.Label)
	}
	s.notifier.Notify(ctx, updated, models.NotificationTableStatusChanged, msg, nil)
	return updated, nil
}

// staffTable loads the table and checks that caller is staff of its place.
func (s *CredentialService) staffTable(ctx context.Context, caller domain.Caller, tableID int64) (*models.Staff, *models.Table, error) {
	staff, err := caller.CurrentStaff(ctx)
	if err != nil {
		return nil, nil, err
	}
	table, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		return nil, nil, storeError(err, "table", tableID)
	}
	if table.PlaceID != staff.PlaceID {
		s.logger.Warn().
			Int64("staff_id", staff.ID).
			Int64("staff_place_id", staff.PlaceID).
			Int64("table_id", table.ID).
			Int64("table_place_id", table.PlaceID).
			Msg("table access denied")
		return nil, nil, domain.Authorization("table access denied")
	}
	return staff, table, nil
}

func (s *CredentialService) releaseClaim(ctx context.Context, tableID int64) {
	if err := s.sessions.ReleaseTable(ctx, tableID); err != nil {
		s.logger.Error().Err(err).Int64("table_id", tableID).Msg("failed to release table claim")
	}
}

// NewSalt returns n random bytes hex encoded.
func NewSalt(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
