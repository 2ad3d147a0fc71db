package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"tableside/internal/auth"
	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/metrics"
	"tableside/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ReasonPasscodeRequired = "passcode_required"
	ReasonPasscodeMismatch = "passcode_mismatch"
	ReasonTooManyAttempts  = "too_many_attempts"
	ReasonSessionInvalid   = "session_invalid"

	resultEstablished = "established"
	resultRefreshed   = "refreshed"

	maxCallStaffMessage = 280
)

// passcodeAlphabet leaves out 0/O, 1/I/L.
const passcodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// EstablishResult is the outcome of a scan. A negative result carries a
// Reason and no token.
type EstablishResult struct {
	Established bool
	Token       string
	Passcode    string
	ExpiresAt   time.Time
	Reason      string
}

type SessionService struct {
	credentials *CredentialService
	sessions    domain.SessionRepository
	tokens      *auth.TokenIssuer
	notifier    domain.Notifier
	cfg         config.SessionsConfig
	ttl         time.Duration
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewSessionService(
	credentials *CredentialService,
	sessions domain.SessionRepository,
	tokens *auth.TokenIssuer,
	notifier domain.Notifier,
	cfg config.SessionsConfig,
	ttl time.Duration,
	logger *zerolog.Logger,
) *SessionService {
	if ttl <= 0 {
		ttl = models.DefaultGuestTokenTTL
	}
	return &SessionService{
		credentials: credentials,
		sessions:    sessions,
		tokens:      tokens,
		notifier:    notifier,
		cfg:         cfg,
		ttl:         ttl,
		logger:      logger,
		now:         time.Now,
	}
}

// Establish opens or joins the ordering context of the table behind salt.
func (s *SessionService) Establish(ctx context.Context, salt, passcode string) (*EstablishResult, error) {
	table, err := s.credentials.ResolveBySalt(ctx, salt)
	if err != nil {
		return nil, err
	}

	passcode = strings.ToUpper(strings.TrimSpace(passcode))
	if passcode == "" {
		return s.open(ctx, table)
	}
	return s.join(ctx, table, passcode)
}

// open starts a fresh passcode context for the first guest at a table.
func (s *SessionService) open(ctx context.Context, table *models.Table) (*EstablishResult, error) {
	claim, err := s.sessions.GetTableClaim(ctx, table.ID)
	if err != nil {
		return nil, sessionStoreError(err)
	}
	if claim != nil {
		return s.rejected(ReasonPasscodeRequired), nil
	}

	code, err := NewPasscode(s.cfg.PasscodeLength)
	if err != nil {
		return nil, domain.Unknown(err, "failed to generate passcode")
	}
	session := s.newSession(table, code)

	claimed, err := s.sessions.ClaimTable(ctx, &models.TableClaim{
		TableID:   table.ID,
		Passcode:  code,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, sessionStoreError(err)
	}
	if !claimed {
		metrics.IncSession("conflict")
		return nil, domain.Conflict("table session already being established")
	}

	res, err := s.issue(ctx, session)
	if err != nil {
		// nobody received the passcode, so the claim must not outlive this call
		if relErr := s.sessions.ReleaseTable(ctx, table.ID); relErr != nil {
			s.logger.Error().Err(relErr).Int64("table_id", table.ID).Msg("failed to release unissued table claim")
		}
		return nil, err
	}
	s.logger.Info().Int64("table_id", table.ID).Str("session_id", session.ID).Msg("table session opened")
	s.notifier.Notify(ctx, table, models.NotificationGuestJoined, fmt.Sprintf("Guest seated at table %s", table.Label), nil)
	metrics.IncSession(resultEstablished)
	return res, nil
}

// join admits another guest who knows the table's passcode.
func (s *SessionService) join(ctx context.Context, table *models.Table, passcode string) (*EstablishResult, error) {
	allowed, err := s.sessions.CheckRateLimit(ctx, fmt.Sprintf("join:%d", table.ID), s.cfg.JoinAttemptsLimit, s.cfg.JoinAttemptsWindow)
	if err != nil {
		return nil, sessionStoreError(err)
	}
	if !allowed {
		s.logger.Warn().Int64("table_id", table.ID).Msg("too many passcode attempts")
		return s.rejected(ReasonTooManyAttempts), nil
	}

	claim, err := s.sessions.GetTableClaim(ctx, table.ID)
	if err != nil {
		return nil, sessionStoreError(err)
	}
	if claim == nil || !passcodeMatches(claim.Passcode, passcode) {
		return s.rejected(ReasonPasscodeMismatch), nil
	}

	session := s.newSession(table, claim.Passcode)
	if ok, err := s.extendClaim(ctx, session); err != nil {
		return nil, err
	} else if !ok {
		return s.rejected(ReasonPasscodeMismatch), nil
	}

	res, err := s.issue(ctx, session)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, table, models.NotificationGuestJoined, fmt.Sprintf("Guest joined table %s", table.Label), nil)
	metrics.IncSession(resultEstablished)
	return res, nil
}

// Check re-establishes a live guest session for the table behind salt. The
// caller must still hold the table's current passcode.
func (s *SessionService) Check(ctx context.Context, salt string, caller domain.Caller) (*EstablishResult, error) {
	table, err := s.credentials.ResolveBySalt(ctx, salt)
	if err != nil {
		return nil, err
	}

	current, err := caller.CurrentGuestSession(ctx)
	if err != nil {
		if domain.IsKind(err, domain.KindUnauthorized) {
			return s.rejected(ReasonSessionInvalid), nil
		}
		return nil, err
	}
	if current.TableID != table.ID {
		return s.rejected(ReasonSessionInvalid), nil
	}

	claim, err := s.sessions.GetTableClaim(ctx, table.ID)
	if err != nil {
		return nil, sessionStoreError(err)
	}
	if claim == nil || !passcodeMatches(claim.Passcode, current.Passcode) {
		return s.rejected(ReasonPasscodeMismatch), nil
	}

	session := s.newSession(table, claim.Passcode)
	if ok, err := s.extendClaim(ctx, session); err != nil {
		return nil, err
	} else if !ok {
		return s.rejected(ReasonPasscodeMismatch), nil
	}

	res, err := s.issue(ctx, session)
	if err != nil {
		return nil, err
	}
	metrics.IncSession(resultRefreshed)
	return res, nil
}

// Leave announces that the guest left. The session itself runs out on expiry.
func (s *SessionService) Leave(ctx context.Context, caller domain.Caller) error {
	session, err := caller.CurrentGuestSession(ctx)
	if err != nil {
		return err
	}
	table, err := s.credentials.repo.GetTable(ctx, session.TableID)
	if err != nil {
		return storeError(err, "table", session.TableID)
	}
	s.notifier.Notify(ctx, table, models.NotificationGuestLeft, fmt.Sprintf("Guest left table %s", table.Label), nil)
	return nil
}

func (s *SessionService) CallStaff(ctx context.Context, caller domain.Caller, message string) error {
	session, err := caller.CurrentGuestSession(ctx)
	if err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	if len(message) > maxCallStaffMessage {
		return domain.Validation("message must be at most %d characters", maxCallStaffMessage)
	}

	table, err := s.credentials.repo.GetTable(ctx, session.TableID)
	if err != nil {
		return storeError(err, "table", session.TableID)
	}
	if message == "" {
		message = fmt.Sprintf("Table %s needs assistance", table.Label)
	}
	s.notifier.Notify(ctx, table, models.NotificationStaffNeeded, message, nil)
	return nil
}

func (s *SessionService) newSession(table *models.Table, passcode string) *models.GuestSession {
	now := s.now()
	return &models.GuestSession{
		ID:        uuid.NewString(),
		TableID:   table.ID,
		PlaceID:   table.PlaceID,
		Passcode:  passcode,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
}

// extendClaim applies the passcode lifetime policy for a joining session.
func (s *SessionService) extendClaim(ctx context.Context, session *models.GuestSession) (bool, error) {
	if s.cfg.PasscodeLifetime != models.PasscodeLifetimeRolling {
		return true, nil
	}
	ok, err := s.sessions.ExtendTableClaim(ctx, &models.TableClaim{
		TableID:   session.TableID,
		Passcode:  session.Passcode,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return false, sessionStoreError(err)
	}
	return ok, nil
}

func (s *SessionService) issue(ctx context.Context, session *models.GuestSession) (*EstablishResult, error) {
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, sessionStoreError(err)
	}
	token, err := s.tokens.IssueGuest(session)
	if err != nil {
		return nil, domain.Unknown(err, "failed to issue guest token")
	}
	return &EstablishResult{
		Established: true,
		Token:       token,
		Passcode:    session.Passcode,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

func (s *SessionService) rejected(reason string) *EstablishResult {
	metrics.IncSession(reason)
	return &EstablishResult{Reason: reason}
}

func passcodeMatches(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// NewPasscode returns a random code of length n drawn from passcodeAlphabet.
func NewPasscode(n int) (string, error) {
	if n <= 0 {
		n = models.DefaultPasscodeLength
	}
	limit := big.NewInt(int64(len(passcodeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(passcodeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
