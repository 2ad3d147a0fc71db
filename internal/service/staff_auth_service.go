package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tableside/internal/auth"
	"tableside/internal/database"
	"tableside/internal/domain"

	"github.com/rs/zerolog"
)

type StaffAuthService struct {
	repo   domain.Repository
	tokens *auth.TokenIssuer
	logger *zerolog.Logger
}

func NewStaffAuthService(repo domain.Repository, tokens *auth.TokenIssuer, logger *zerolog.Logger) *StaffAuthService {
	return &StaffAuthService{repo: repo, tokens: tokens, logger: logger}
}

// Login exchanges staff credentials for a bearer token.
func (s *StaffAuthService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", time.Time{}, domain.Validation("email and password are required")
	}

	staff, err := s.repo.GetStaffByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return "", time.Time{}, domain.Unauthorized("invalid email or password")
	}
	if err != nil {
		return "", time.Time{}, domain.Unknown(err, "failed to load staff")
	}
	if !auth.VerifyPassword(staff.PasswordHash, password) || !staff.Active {
		s.logger.Warn().Int64("staff_id", staff.ID).Msg("staff login rejected")
		return "", time.Time{}, domain.Unauthorized("invalid email or password")
	}

	token, exp, err := s.tokens.IssueStaff(staff)
	if err != nil {
		return "", time.Time{}, domain.Unknown(err, "failed to issue staff token")
	}
	s.logger.Info().Int64("staff_id", staff.ID).Int64("place_id", staff.PlaceID).Msg("staff logged in")
	return token, exp, nil
}
