package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/dispatcher"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/mocks"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	events []*models.CRMEvent
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, event *models.CRMEvent) (*dispatcher.Report, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}

	return &dispatcher.Report{EventID: event.ID, Matched: 1}, nil
}

type fakeObserver struct {
	observed []*models.CRMEvent
}

func (f *fakeObserver) Observe(_ context.Context, event *models.CRMEvent) (int, error) {
	f.observed = append(f.observed, event)

	return 1, nil
}

func TestEvents_IngestPublishesToBus(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "acme", mock.AnythingOfType("*events.CRMEventReceived")).Return(nil).Once()

	service := NewEvents(slog.New(slog.DiscardHandler), bus, nil, nil, clock.NewFake(serviceNow))

	event, err := service.Ingest(t.Context(), &models.CRMEvent{
		Type:       models.EventEmailOpened,
		TenantID:   "acme",
		EntityID:   "c-1",
		EntityType: "contact",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, serviceNow, event.OccurredAt)
	bus.AssertExpectations(t)
}

func TestEvents_IngestRejectsIncompleteEvent(t *testing.T) {
	bus := &mocks.MockEventBus{}
	service := NewEvents(slog.New(slog.DiscardHandler), bus, nil, nil, clock.NewFake(serviceNow))

	_, err := service.Ingest(t.Context(), &models.CRMEvent{Type: models.EventEmailOpened})
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, models.ErrEventTenantRequired)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvents_HandleReceivedDispatchesThenObserves(t *testing.T) {
	d := &fakeDispatcher{}
	observer := &fakeObserver{}
	service := NewEvents(slog.New(slog.DiscardHandler), nil, d, observer, clock.NewFake(serviceNow))

	event := &models.CRMEvent{ID: "e-1", Type: models.EventEmailReplied, TenantID: "acme", EntityID: "c-1", EntityType: "contact"}

	require.NoError(t, service.HandleReceived(t.Context(), events.NewCRMEventReceived(event)))
	assert.Len(t, d.events, 1)
	assert.Len(t, observer.observed, 1)

	tick := &models.CRMEvent{ID: "e-2", Type: models.EventScheduleTick, TenantID: "acme", EntityID: "acme", EntityType: "tenant"}
	require.NoError(t, service.HandleReceived(t.Context(), events.NewCRMEventReceived(tick)))
	assert.Len(t, d.events, 2)
	assert.Len(t, observer.observed, 1, "schedule ticks are not enrollment events")

	require.NoError(t, service.HandleReceived(t.Context(), &events.CRMEventReceived{}), "invalid messages are dropped")
	assert.Error(t, service.HandleReceived(t.Context(), "garbage"))
}

func TestEvents_HandleReceivedReturnsDispatchErrors(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("store down")}
	service := NewEvents(slog.New(slog.DiscardHandler), nil, d, &fakeObserver{}, clock.NewFake(serviceNow))

	event := &models.CRMEvent{ID: "e-1", Type: models.EventMeetingHeld, TenantID: "acme", EntityID: "d-1", EntityType: "deal"}

	assert.Error(t, service.HandleReceived(t.Context(), events.NewCRMEventReceived(event)))
}
