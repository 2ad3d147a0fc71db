package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"tableside/internal/database"
	"tableside/internal/domain"
	"tableside/internal/models"
)

// Resolver turns a raw bearer credential into a per-request CurrentUser.
type Resolver struct {
	tokens   *TokenIssuer
	repo     domain.Repository
	sessions domain.SessionRepository
}

func NewResolver(tokens *TokenIssuer, repo domain.Repository, sessions domain.SessionRepository) *Resolver {
	return &Resolver{tokens: tokens, repo: repo, sessions: sessions}
}

// Resolve never fails; a bad credential surfaces on first use.
func (r *Resolver) Resolve(raw string) *CurrentUser {
	u := &CurrentUser{
		raw:      raw,
		repo:     r.repo,
		sessions: r.sessions,
		now:      time.Now,
	}
	if raw != "" {
		u.identity, u.parseErr = r.tokens.Parse(raw)
	}
	return u
}

// CurrentUser is the identity of one request. The staff row is loaded at most
// once and never shared between requests.
type CurrentUser struct {
	raw      string
	identity Identity
	parseErr error

	repo     domain.Repository
	sessions domain.SessionRepository
	now      func() time.Time

	mu          sync.Mutex
	staffLoaded bool
	staff       *models.Staff
	staffErr    error
}

func (u *CurrentUser) RawCredential() string {
	return u.raw
}

func (u *CurrentUser) Identity() Identity {
	return u.identity
}

func (u *CurrentUser) IsGuest() bool {
	_, ok := u.identity.(GuestIdentity)
	return ok
}

// Guest returns the guest claims when the credential is a guest token.
func (u *CurrentUser) Guest() (GuestIdentity, bool) {
	g, ok := u.identity.(GuestIdentity)
	return g, ok
}

func (u *CurrentUser) credentialError() error {
	if u.parseErr != nil {
		return u.parseErr
	}
	if u.identity == nil {
		return domain.Unauthorized("authentication required")
	}
	return nil
}

func (u *CurrentUser) CurrentStaff(ctx context.Context) (*models.Staff, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.staffLoaded {
		u.staff, u.staffErr = u.loadStaff(ctx)
		u.staffLoaded = true
	}
	return u.staff, u.staffErr
}

func (u *CurrentUser) loadStaff(ctx context.Context) (*models.Staff, error) {
	if err := u.credentialError(); err != nil {
		return nil, err
	}
	id, ok := u.identity.(StaffIdentity)
	if !ok {
		return nil, domain.Unauthorized("staff credentials required")
	}

	staff, err := u.repo.GetStaff(ctx, id.StaffID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.Unauthorized("staff account not found")
	}
	if err != nil {
		return nil, domain.Unknown(err, "failed to load staff")
	}
	if !staff.Active {
		return nil, domain.Unauthorized("staff account is inactive")
	}
	return staff, nil
}

// CurrentGuestSession returns the live session behind a guest token. The
// session must still exist and its table must still exist and be enabled.
func (u *CurrentUser) CurrentGuestSession(ctx context.Context) (*models.GuestSession, error) {
	if err := u.credentialError(); err != nil {
		return nil, err
	}
	g, ok := u.identity.(GuestIdentity)
	if !ok {
		return nil, domain.Unauthorized("guest credentials required")
	}

	session, err := u.sessions.GetSession(ctx, g.SessionID)
	if err != nil {
		return nil, domain.Unknown(err, "failed to load guest session")
	}
	if session == nil || session.Expired(u.now()) || session.TableID != g.TableID {
		return nil, domain.Unauthorized("guest session expired")
	}

	table, err := u.repo.GetTable(ctx, session.TableID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.Unauthorized("table no longer exists")
	}
	if err != nil {
		return nil, domain.Unknown(err, "failed to load table")
	}
	if table.Disabled {
		return nil, domain.Unauthorized("table is disabled")
	}
	return session, nil
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *CurrentUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the request's user, or an anonymous one.
func FromContext(ctx context.Context) *CurrentUser {
	if u, ok := ctx.Value(ctxKey{}).(*CurrentUser); ok {
		return u
	}
	return &CurrentUser{now: time.Now}
}
