package service

import (
	"context"
	"fmt"

	"tableside/internal/domain"
	"tableside/internal/metrics"
	"tableside/internal/models"

	"github.com/rs/zerolog"
)

const maxOrderNote = 500

type OrderLineInput struct {
	MenuItemID int64
	Quantity   int
	Discount   int64
}

type CreateOrderInput struct {
	TableID        int64
	CustomerID     *int64
	GuestSessionID string
	PaymentType    models.PaymentType
	Note           string
	Lines          []OrderLineInput
}

type OrderService struct {
	repo        domain.Repository
	sessions    domain.SessionRepository
	notifier    domain.Notifier
	autoRelease bool
	logger      *zerolog.Logger
}

func NewOrderService(
	repo domain.Repository,
	sessions domain.SessionRepository,
	notifier domain.Notifier,
	autoRelease bool,
	logger *zerolog.Logger,
) *OrderService {
	return &OrderService{
		repo:        repo,
		sessions:    sessions,
		notifier:    notifier,
		autoRelease: autoRelease,
		logger:      logger,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, caller domain.Caller, in CreateOrderInput) (*models.Order, error) {
	table, err := s.repo.GetTable(ctx, in.TableID)
	if err != nil {
		return nil, storeError(err, "table", in.TableID)
	}

	guestSessionID, err := s.orderOrigin(ctx, caller, table, in.GuestSessionID)
	if err != nil {
		return nil, err
	}
	if table.Disabled {
		return nil, domain.Validation("table %s is disabled", table.Label)
	}
	if err := validateOrderInput(caller.IsGuest(), in); err != nil {
		return nil, err
	}

	if in.CustomerID != nil {
		if _, err := s.repo.GetCustomer(ctx, *in.CustomerID); err != nil {
			return nil, storeError(err, "customer", *in.CustomerID)
		}
	}

	lines, err := s.priceLines(ctx, table, in.Lines)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		TableID:        table.ID,
		PlaceID:        table.PlaceID,
		CustomerID:     in.CustomerID,
		GuestSessionID: guestSessionID,
		Lines:          lines,
		TotalPrice:     models.LinesTotal(lines),
		Status:         models.OrderCreated,
		PaymentType:    in.PaymentType,
		Note:           in.Note,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, storeError(err, "order", "new")
	}

	s.logger.Info().
		Int64("order_id", order.ID).
		Int64("table_id", table.ID).
		Int64("total", order.TotalPrice).
		Bool("guest", caller.IsGuest()).
		Msg("order created")

	if table.Status != models.TableOccupied {
		s.setTableStatus(ctx, table, models.TableOccupied)
	}
	s.notifier.Notify(ctx, table, models.NotificationOrderCreated,
		fmt.Sprintf("New order #%d at table %s", order.ID, table.Label), &order.ID)

	return order, nil
}

// orderOrigin checks that caller may order at table and returns the guest
// session the order is attributed to.
func (s *OrderService) orderOrigin(ctx context.Context, caller domain.Caller, table *models.Table, requested string) (string, error) {
	if caller.IsGuest() {
		session, err := caller.CurrentGuestSession(ctx)
		if err != nil {
			return "", err
		}
		if session.TableID != table.ID || (requested != "" && requested != session.ID) {
			s.logger.Warn().
				Str("session_id", session.ID).
				Int64("session_table_id", session.TableID).
				Int64("table_id", table.ID).
				Msg("table access denied")
			return "", domain.Authorization("table access denied")
		}
		return session.ID, nil
	}

	staff, err := caller.CurrentStaff(ctx)
	if err != nil {
		return "", err
	}
	if staff.PlaceID != table.PlaceID {
		s.logger.Warn().
			Int64("staff_id", staff.ID).
			Int64("table_id", table.ID).
			Msg("table access denied")
		return "", domain.Authorization("table access denied")
	}
	if requested == "" {
		return "", nil
	}

	session, err := s.sessions.GetSession(ctx, requested)
	if err != nil {
		return "", sessionStoreError(err)
	}
	if session == nil {
		return "", domain.NotFound("guest session not found")
	}
	if session.TableID != table.ID {
		return "", domain.Validation("guest session belongs to another table")
	}
	return session.ID, nil
}

func validateOrderInput(guest bool, in CreateOrderInput) error {
	if len(in.Lines) == 0 {
		return domain.Validation("order must contain at least one line")
	}
	if !in.PaymentType.Valid() {
		return domain.Validation("invalid payment type %q", in.PaymentType)
	}
	if len(in.Note) > maxOrderNote {
		return domain.Validation("note must be at most %d characters", maxOrderNote)
	}
	for i, l := range in.Lines {
		if l.Quantity < 1 {
			return domain.Validation("line %d: quantity must be at least 1", i+1)
		}
		if l.Discount < 0 {
			return domain.Validation("line %d: discount cannot be negative", i+1)
		}
		if guest && l.Discount > 0 {
			return domain.Validation("line %d: only staff may grant discounts", i+1)
		}
	}
	return nil
}

// priceLines snapshots current menu prices into order lines.
func (s *OrderService) priceLines(ctx context.Context, table *models.Table, in []OrderLineInput) ([]models.OrderLine, error) {
	ids := make([]int64, 0, len(in))
	for _, l := range in {
		ids = append(ids, l.MenuItemID)
	}
	items, err := s.repo.GetMenuItemsByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, "menu item", ids)
	}

	lines := make([]models.OrderLine, 0, len(in))
	for i, l := range in {
		item, ok := items[l.MenuItemID]
		if !ok {
			return nil, domain.NotFound("menu item %d not found", l.MenuItemID)
		}
		if !item.Available {
			return nil, domain.Validation("menu item %s is not available", item.Name)
		}
		if item.PlaceID != table.PlaceID {
			return nil, domain.Validation("menu item %d is not offered at this place", item.ID)
		}
		if l.Discount > item.Price*int64(l.Quantity) {
			return nil, domain.Validation("line %d: discount exceeds line price", i+1)
		}
		lines = append(lines, models.OrderLine{
			MenuItemID: item.ID,
			Name:       item.Name,
			UnitPrice:  item.Price,
			Quantity:   l.Quantity,
			Discount:   l.Discount,
		})
	}
	return lines, nil
}

// TransitionStatus moves an order along its lifecycle. Concurrent callers
// racing on the same order see exactly one success; the rest get Conflict.
func (s *OrderService) TransitionStatus(
	ctx context.Context,
	caller domain.Caller,
	orderID int64,
	to models.OrderStatus,
	payment models.PaymentType,
) (*models.Order, error) {
	if !to.Valid() {
		return nil, domain.Validation("unknown order status %q", to)
	}
	if !payment.Valid() {
		return nil, domain.Validation("invalid payment type %q", payment)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "order", orderID)
	}
	from := order.Status
	if from == to {
		return nil, domain.Conflict("order %d is already %s", order.ID, to)
	}
	if !models.CanTransition(from, to) {
		return nil, domain.Validation("invalid status transition").
			With("from", string(from)).
			With("to", string(to))
	}

	table, err := s.authorizeOrder(ctx, caller, order)
	if err != nil {
		return nil, err
	}
	if caller.IsGuest() && !models.GuestMayTransition(from, to) {
		s.logger.Warn().
			Int64("order_id", order.ID).
			Int64("table_id", order.TableID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("guest transition denied")
		return nil, domain.Authorization("guests may not move an order from %s to %s", from, to)
	}

	if err := s.repo.UpdateOrderStatusWithVersion(ctx, order.ID, order.Version, to, payment); err != nil {
		return nil, storeError(err, "order", order.ID)
	}
	metrics.IncOrderTransition(string(from), string(to))
	s.logger.Info().
		Int64("order_id", order.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Bool("guest", caller.IsGuest()).
		Msg("order status changed")

	updated, err := s.repo.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, storeError(err, "order", order.ID)
	}

	switch to {
	case models.OrderPaymentRequested:
		s.notifier.Notify(ctx, table, models.NotificationPaymentRequested,
			fmt.Sprintf("Payment requested for order #%d at table %s", order.ID, table.Label), &order.ID)
	case models.OrderCancelled:
		s.notifier.Notify(ctx, table, models.NotificationOrderCancelled,
			fmt.Sprintf("Order #%d at table %s was cancelled", order.ID, table.Label), &order.ID)
	}
	if to.Terminal() {
		s.releaseIfIdle(ctx, table)
	}

	return updated, nil
}

func (s *OrderService) GetOrder(ctx context.Context, caller domain.Caller, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "order", orderID)
	}
	if _, err := s.authorizeOrder(ctx, caller, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListTableOrders returns the table's orders, newest first. Guests only see
// orders placed through a guest session.
func (s *OrderService) ListTableOrders(ctx context.Context, caller domain.Caller, tableID int64) ([]*models.Order, error) {
	table, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		return nil, storeError(err, "table", tableID)
	}

	guest := caller.IsGuest()
	if guest {
		session, err := caller.CurrentGuestSession(ctx)
		if err != nil {
			return nil, err
		}
		if session.TableID != table.ID {
			s.logger.Warn().
				Int64("table_id", table.ID).
				Str("session_id", session.ID).
				Int64("session_table_id", session.TableID).
				Msg("table orders access denied")
			return nil, domain.Authorization("table access denied")
		}
	} else {
		staff, err := caller.CurrentStaff(ctx)
		if err != nil {
			return nil, err
		}
		if staff.PlaceID != table.PlaceID {
			s.logger.Warn().
				Int64("table_id", table.ID).
				Int64("staff_id", staff.ID).
				Int64("staff_place_id", staff.PlaceID).
				Int64("table_place_id", table.PlaceID).
				Msg("table orders access denied")
			return nil, domain.Authorization("table access denied")
		}
	}

	orders, err := s.repo.GetTableOrders(ctx, table.ID)
	if err != nil {
		return nil, storeError(err, "table", table.ID)
	}
	if !guest {
		return orders, nil
	}
	visible := orders[:0]
	for _, o := range orders {
		if o.GuestSessionID != "" {
			visible = append(visible, o)
		}
	}
	return visible, nil
}

// authorizeOrder applies the ownership rule and returns the order's table.
func (s *OrderService) authorizeOrder(ctx context.Context, caller domain.Caller, order *models.Order) (*models.Table, error) {
	table, err := s.repo.GetTable(ctx, order.TableID)
	if err != nil {
		return nil, storeError(err, "table", order.TableID)
	}

	if caller.IsGuest() {
		session, err := caller.CurrentGuestSession(ctx)
		if err != nil {
			return nil, err
		}
		if order.GuestSessionID == "" || order.TableID != session.TableID {
			s.logger.Warn().
				Int64("order_id", order.ID).
				Int64("order_table_id", order.TableID).
				Str("session_id", session.ID).
				Int64("session_table_id", session.TableID).
				Msg("order access denied")
			return nil, domain.Authorization("order access denied")
		}
		return table, nil
	}

	staff, err := caller.CurrentStaff(ctx)
	if err != nil {
		return nil, err
	}
	if table.PlaceID != staff.PlaceID {
		s.logger.Warn().
			Int64("order_id", order.ID).
			Int64("staff_id", staff.ID).
			Int64("staff_place_id", staff.PlaceID).
			Int64("table_place_id", table.PlaceID).
			Msg("order access denied")
		return nil, domain.Authorization("order access denied")
	}
	return table, nil
}

// releaseIfIdle returns the table to empty once nothing is open there.
func (s *OrderService) releaseIfIdle(ctx context.Context, table *models.Table) {
	if !s.autoRelease {
		return
	}
	open, err := s.repo.CountOpenOrders(ctx, table.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("table_id", table.ID).Msg("failed to count open orders")
		return
	}
	if open > 0 {
		return
	}

	if err := s.sessions.ReleaseTable(ctx, table.ID); err != nil {
		s.logger.Error().Err(err).Int64("table_id", table.ID).Msg("failed to release table claim")
	}
	if table.Status != models.TableEmpty {
		s.setTableStatus(ctx, table, models.TableEmpty)
	}
}

// setTableStatus is a side effect of an order change; failures are logged only.
func (s *OrderService) setTableStatus(ctx context.Context, table *models.Table, status models.TableStatus) {
	if err := s.repo.UpdateTableStatus(ctx, table.ID, status); err != nil {
		s.logger.Error().Err(err).Int64("table_id", table.ID).Str("status", string(status)).Msg("failed to update table status")
		return
	}
	table.Status = status
	s.notifier.Notify(ctx, table, models.NotificationTableStatusChanged,
		fmt.Sprintf("Table %s is now %s", table.Label, status), nil)
}
