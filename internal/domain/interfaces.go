package domain

import (
	"context"
	"time"

	"tableside/internal/models"
)

// Repository is the durable entity store.
type Repository interface {
	GetPlace(ctx context.Context, id int64) (*models.Place, error)
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	GetTableBySalt(ctx context.Context, salt string) (*models.Table, error)
	UpdateTableSalt(ctx context.Context, id int64, salt string) error
	UpdateTableStatus(ctx context.Context, id int64, status models.TableStatus) error
	SetTableDisabled(ctx context.Context, id int64, disabled bool) error
	GetStaff(ctx context.Context, id int64) (*models.Staff, error)
	GetStaffByEmail(ctx context.Context, email string) (*models.Staff, error)
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	GetMenuItemsByIDs(ctx context.Context, ids []int64) (map[int64]*models.MenuItem, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetTableOrders(ctx context.Context, tableID int64) ([]*models.Order, error)
	UpdateOrderStatusWithVersion(ctx context.Context, id, version int64, status models.OrderStatus, payment models.PaymentType) error
	CountOpenOrders(ctx context.Context, tableID int64) (int, error)
}

// SessionRepository keeps guest sessions and table claims until they expire.
// Getters return nil, nil for absent or expired entries.
type SessionRepository interface {
	SaveSession(ctx context.Context, session *models.GuestSession) error
	GetSession(ctx context.Context, id string) (*models.GuestSession, error)
	ClaimTable(ctx context.Context, claim *models.TableClaim) (bool, error)
	GetTableClaim(ctx context.Context, tableID int64) (*models.TableClaim, error)
	ExtendTableClaim(ctx context.Context, claim *models.TableClaim) (bool, error)
	ReleaseTable(ctx context.Context, tableID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventPublisher delivers notifications to everyone subscribed to topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, n *models.TableNotification) error
}

// Caller is the per-request identity seen by services.
type Caller interface {
	IsGuest() bool
	CurrentStaff(ctx context.Context) (*models.Staff, error)
	CurrentGuestSession(ctx context.Context) (*models.GuestSession, error)
}

type Notifier interface {
	Notify(ctx context.Context, table *models.Table, kind models.NotificationType, message string, orderID *int64)
}
