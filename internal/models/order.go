package models

import "time"

type OrderStatus string

const (
	OrderCreated          OrderStatus = "created"
	OrderApproved         OrderStatus = "approved"
	OrderDelivered        OrderStatus = "delivered"
	OrderPaymentRequested OrderStatus = "payment_requested"
	OrderPaid             OrderStatus = "paid"
	OrderClosed           OrderStatus = "closed"
	OrderCancelled        OrderStatus = "cancelled"
)

type PaymentType string

const (
	PaymentNone   PaymentType = ""
	PaymentCash   PaymentType = "cash"
	PaymentCard   PaymentType = "card"
	PaymentOnline PaymentType = "online"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentNone, PaymentCash, PaymentCard, PaymentOnline:
		return true
	}
	return false
}

// edge describes who may move an order along one transition.
type edge struct {
	guest bool
}

var orderTransitions = map[OrderStatus]map[OrderStatus]edge{
	OrderCreated: {
		OrderApproved:  {},
		OrderCancelled: {},
	},
	OrderApproved: {
		OrderDelivered: {},
		OrderCancelled: {},
	},
	OrderDelivered: {
		OrderPaymentRequested: {guest: true},
		OrderCancelled:        {guest: true},
	},
	OrderPaymentRequested: {
		OrderPaid: {},
	},
	OrderPaid: {
		OrderClosed: {},
	},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderCreated, OrderApproved, OrderDelivered, OrderPaymentRequested,
		OrderPaid, OrderClosed, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderClosed || s == OrderCancelled
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to OrderStatus) bool {
	_, ok := orderTransitions[from][to]
	return ok
}

// GuestMayTransition reports whether a guest session is allowed to perform from -> to.
// Staff may perform every edge.
func GuestMayTransition(from, to OrderStatus) bool {
	e, ok := orderTransitions[from][to]
	return ok && e.guest
}

// OpenOrderStatuses lists every non-terminal status.
func OpenOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderCreated, OrderApproved, OrderDelivered, OrderPaymentRequested, OrderPaid}
}

// OrderLine amounts are in minor currency units.
type OrderLine struct {
	ID         int64  `json:"id"`
	OrderID    int64  `json:"orderId"`
	MenuItemID int64  `json:"menuItemId"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unitPrice"`
	Quantity   int    `json:"quantity"`
	Discount   int64  `json:"discount"`
}

func (l OrderLine) Subtotal() int64 {
	return l.UnitPrice*int64(l.Quantity) - l.Discount
}

type Order struct {
	ID             int64       `json:"id"`
	TableID        int64       `json:"tableId"`
	PlaceID        int64       `json:"placeId"`
	CustomerID     *int64      `json:"customerId,omitempty"`
	GuestSessionID string      `json:"guestSessionId,omitempty"`
	Lines          []OrderLine `json:"lines"`
	TotalPrice     int64       `json:"totalPrice"`
	Status         OrderStatus `json:"status"`
	PaymentType    PaymentType `json:"paymentType,omitempty"`
	Note           string      `json:"note,omitempty"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// LinesTotal sums line subtotals.
func LinesTotal(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}
