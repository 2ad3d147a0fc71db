package service

import (
	"context"
	"time"

	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/metrics"
	"tableside/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationService builds table notifications and hands them to the
// publisher. Delivery is best-effort: failures are logged, never returned.
type NotificationService struct {
	publisher domain.EventPublisher
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewNotificationService(publisher domain.EventPublisher, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{publisher: publisher, logger: logger, now: time.Now}
}

func (s *NotificationService) Notify(ctx context.Context, table *models.Table, kind models.NotificationType, message string, orderID *int64) {
	n := &models.TableNotification{
		ID:         uuid.NewString(),
		Timestamp:  s.now().UTC(),
		PlaceID:    table.PlaceID,
		TableID:    table.ID,
		TableLabel: table.Label,
		Message:    message,
		Type:       kind,
		OrderID:    orderID,
		Pending:    true,
	}

	if err := s.publisher.Publish(ctx, events.PlaceTopic(table.PlaceID), n); err != nil {
		s.logger.Error().Err(err).
			Str("type", string(kind)).
			Int64("table_id", table.ID).
			Msg("failed to publish notification")
		return
	}
	metrics.IncNotification(string(kind))
}
