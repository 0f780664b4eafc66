// Package notify delivers notifications and outreach emails requested by rules and workflows.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

// ChannelWebhook routes a notification through the configured webhook.
const (
	ChannelInApp   = "in_app"
	ChannelWebhook = "webhook"
)

type Store interface {
	SaveNotification(ctx context.Context, notification *models.Notification) error
}

// Notifier stores notifications, hands them to the bus and optionally posts webhooks.
type Notifier struct {
	store     Store
	publisher eventbus.EventPublisher
	webhook   *Webhook
	clock     clock.Clock
	logger    *slog.Logger
}

// NewNotifier builds a notifier. publisher and webhook may be nil.
func NewNotifier(logger *slog.Logger, store Store, publisher eventbus.EventPublisher, webhook *Webhook, clk clock.Clock) *Notifier {
	return &Notifier{
		store:     store,
		publisher: publisher,
		webhook:   webhook,
		clock:     clk,
		logger:    logger.With("module", "notifier"),
	}
}

func (n *Notifier) Notify(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}

	if notification.Channel == "" {
		notification.Channel = ChannelInApp
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = n.clock.Now()
	}

	if err := n.store.SaveNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if notification.Channel == ChannelWebhook && n.webhook != nil {
		if err := n.webhook.Deliver(ctx, notification); err != nil {
			return err
		}
	}

	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, notification.TenantID, events.NewNotificationRequested(notification)); err != nil {
			return fmt.Errorf("failed to publish notification: %w", err)
		}
	}

	n.logger.DebugContext(ctx, "notification raised",
		"notification_id", notification.ID,
		"tenant_id", notification.TenantID,
		"channel", notification.Channel)

	return nil
}
