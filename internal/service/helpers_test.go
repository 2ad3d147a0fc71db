package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tableside/internal/auth"
	"tableside/internal/config"
	"tableside/internal/database"
	"tableside/internal/models"
	"tableside/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	items  []*models.TableNotification
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, n *models.TableNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.items = append(p.items, n)
	return nil
}

func (p *recordingPublisher) ofType(kind models.NotificationType) []*models.TableNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.TableNotification
	for _, n := range p.items {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.topics = nil
	p.items = nil
	p.mu.Unlock()
}

type testEnv struct {
	db       *database.DB
	store    *repository.MemorySessionRepository
	pub      *recordingPublisher
	tokens   *auth.TokenIssuer
	resolver *auth.Resolver
	notifier *NotificationService
	cfg      config.SessionsConfig

	credentials *CredentialService
	sessions    *SessionService
	orders      *OrderService
	staffAuth   *StaffAuthService

	place      *models.Place
	otherPlace *models.Place
	table      *models.Table
	table2     *models.Table
	otherTable *models.Table
	staff      *models.Staff
	otherStaff *models.Staff
	coffee     *models.MenuItem
	cake       *models.MenuItem
	soldOut    *models.MenuItem
	foreign    *models.MenuItem
	customer   *models.Customer
}

type envOption func(*config.SessionsConfig, *bool)

func withLifetime(lifetime string) envOption {
	return func(c *config.SessionsConfig, _ *bool) { c.PasscodeLifetime = lifetime }
}

func withoutAutoRelease() envOption {
	return func(_ *config.SessionsConfig, release *bool) { *release = false }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sessionsCfg := config.SessionsConfig{
		SaltBytes:          16,
		PasscodeLength:     6,
		PasscodeLifetime:   models.PasscodeLifetimeRolling,
		JoinAttemptsLimit:  5,
		JoinAttemptsWindow: time.Minute,
	}
	autoRelease := true
	for _, opt := range opts {
		opt(&sessionsCfg, &autoRelease)
	}

	e := &testEnv{
		db:    db,
		store: repository.NewMemorySessionRepository(),
		pub:   &recordingPublisher{},
		tokens: auth.NewTokenIssuer(config.AuthConfig{
			JWTSecret:     testSecret,
			Issuer:        "tableside",
			GuestTokenTTL: 30 * time.Minute,
			StaffTokenTTL: time.Hour,
		}),
	}
	e.resolver = auth.NewResolver(e.tokens, db, e.store)

	notifier := NewNotificationService(e.pub, &logger)
	e.notifier = notifier
	e.cfg = sessionsCfg
	e.credentials = NewCredentialService(db, e.store, notifier, sessionsCfg.SaltBytes, &logger)
	e.sessions = NewSessionService(e.credentials, e.store, e.tokens, notifier, sessionsCfg, 30*time.Minute, &logger)
	e.orders = NewOrderService(db, e.store, notifier, autoRelease, &logger)
	e.staffAuth = NewStaffAuthService(db, e.tokens, &logger)

	e.place = &models.Place{Name: "Bistro"}
	require.NoError(t, db.CreatePlace(ctx, e.place))
	e.otherPlace = &models.Place{Name: "Diner"}
	require.NoError(t, db.CreatePlace(ctx, e.otherPlace))

	e.table = &models.Table{PlaceID: e.place.ID, Label: "T1", Capacity: 4, Salt: "salt-t1"}
	require.NoError(t, db.CreateTable(ctx, e.table))
	e.table2 = &models.Table{PlaceID: e.place.ID, Label: "T2", Capacity: 2, Salt: "salt-t2"}
	require.NoError(t, db.CreateTable(ctx, e.table2))
	e.otherTable = &models.Table{PlaceID: e.otherPlace.ID, Label: "D1", Capacity: 2, Salt: "salt-d1"}
	require.NoError(t, db.CreateTable(ctx, e.otherTable))

	e.staff = &models.Staff{PlaceID: e.place.ID, Name: "Ana", Email: "ana@bistro.test", PasswordHash: "x", Active: true}
	require.NoError(t, db.CreateStaff(ctx, e.staff))
	e.otherStaff = &models.Staff{PlaceID: e.otherPlace.ID, Name: "Dan", Email: "dan@diner.test", PasswordHash: "x", Active: true}
	require.NoError(t, db.CreateStaff(ctx, e.otherStaff))

	e.coffee = &models.MenuItem{PlaceID: e.place.ID, Name: "Coffee", Price: 300, Available: true}
	require.NoError(t, db.CreateMenuItem(ctx, e.coffee))
	e.cake = &models.MenuItem{PlaceID: e.place.ID, Name: "Cake", Price: 450, Available: true}
	require.NoError(t, db.CreateMenuItem(ctx, e.cake))
	e.soldOut = &models.MenuItem{PlaceID: e.place.ID, Name: "Soup", Price: 500, Available: false}
	require.NoError(t, db.CreateMenuItem(ctx, e.soldOut))
	e.foreign = &models.MenuItem{PlaceID: e.otherPlace.ID, Name: "Burger", Price: 900, Available: true}
	require.NoError(t, db.CreateMenuItem(ctx, e.foreign))

	e.customer = &models.Customer{Name: "Regular", Email: "regular@example.com"}
	require.NoError(t, db.CreateCustomer(ctx, e.customer))

	return e
}

// staffUser returns a fresh per-request identity for staff.
func (e *testEnv) staffUser(t *testing.T, staff *models.Staff) *auth.CurrentUser {
	t.Helper()
	raw, _, err := e.tokens.IssueStaff(staff)
	require.NoError(t, err)
	return e.resolver.Resolve(raw)
}

func (e *testEnv) guestUser(token string) *auth.CurrentUser {
	return e.resolver.Resolve(token)
}

func (e *testEnv) establish(t *testing.T, salt, passcode string) *EstablishResult {
	t.Helper()
	res, err := e.sessions.Establish(context.Background(), salt, passcode)
	require.NoError(t, err)
	require.True(t, res.Established, "reason: %s", res.Reason)
	return res
}

func (e *testEnv) guestOrder(t *testing.T, token string, table *models.Table) *models.Order {
	t.Helper()
	order, err := e.orders.CreateOrder(context.Background(), e.guestUser(token), CreateOrderInput{
		TableID: table.ID,
		Lines:   []OrderLineInput{{MenuItemID: e.coffee.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	return order
}

func (e *testEnv) transition(t *testing.T, user *auth.CurrentUser, orderID int64, to models.OrderStatus) *models.Order {
	t.Helper()
	order, err := e.orders.TransitionStatus(context.Background(), user, orderID, to, models.PaymentNone)
	require.NoError(t, err)
	return order
}
