package models

import "time"

type NotificationType string

const (
	NotificationGuestJoined        NotificationType = "guest_joined"
	NotificationGuestLeft          NotificationType = "guest_left"
	NotificationStaffNeeded        NotificationType = "staff_needed"
	NotificationOrderCreated       NotificationType = "order_created"
	NotificationOrderCancelled     NotificationType = "order_cancelled"
	NotificationPaymentRequested   NotificationType = "payment_requested"
	NotificationTableStatusChanged NotificationType = "table_status_changed"
)

// TableNotification is a transient event delivered to staff connected to a place.
type TableNotification struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	PlaceID    int64            `json:"placeId"`
	TableID    int64            `json:"tableId"`
	TableLabel string           `json:"tableLabel"`
	Message    string           `json:"message"`
	Type       NotificationType `json:"type"`
	OrderID    *int64           `json:"orderId,omitempty"`
	Pending    bool             `json:"pending"`
}
