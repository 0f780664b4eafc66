package notify

import (
	"context"
	"errors"

	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
)

var ErrMailerUnavailable = errors.New("no mail transport configured")

// Email is an outreach message to the entity's primary contact.
type Email struct {
	TenantID     string
	EntityType   string
	EntityID     string
	Subject      string
	Body         string
	TemplateID   string
	EnrollmentID string
}

// BusMailer hands emails to the mail integration over the event bus.
type BusMailer struct {
	publisher eventbus.EventPublisher
}

func NewBusMailer(publisher eventbus.EventPublisher) *BusMailer {
	return &BusMailer{publisher: publisher}
}

func (m *BusMailer) Send(ctx context.Context, email Email) error {
	if m.publisher == nil {
		return ErrMailerUnavailable
	}

	return m.publisher.Publish(ctx, email.TenantID, &events.EmailSendRequested{
		BaseEvent:    events.NewBaseEvent(events.EmailSendRequestedEvent, email.TenantID),
		EntityType:   email.EntityType,
		EntityID:     email.EntityID,
		Subject:      email.Subject,
		Body:         email.Body,
		TemplateID:   email.TemplateID,
		EnrollmentID: email.EnrollmentID,
	})
}
