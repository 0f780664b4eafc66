package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/mocks"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func TestNotifier_StoresAndPublishes(t *testing.T) {
	store := &mocks.MockEntityRepository{}
	bus := &mocks.MockEventBus{}

	store.On("SaveNotification", mock.Anything, mock.AnythingOfType("*models.Notification")).Return(nil)
	bus.On("Publish", mock.Anything, "acme", mock.AnythingOfType("*events.NotificationRequested")).Return(nil)

	notifier := NewNotifier(slog.New(slog.DiscardHandler), store, bus, nil, clock.NewFake(testNow))

	notification := &models.Notification{TenantID: "acme", Message: "Deal won"}
	require.NoError(t, notifier.Notify(t.Context(), notification))

	assert.NotEmpty(t, notification.ID)
	assert.Equal(t, ChannelInApp, notification.Channel)
	assert.Equal(t, testNow, notification.CreatedAt)
	store.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestNotifier_StoreFailure(t *testing.T) {
	store := &mocks.MockEntityRepository{}
	store.On("SaveNotification", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	notifier := NewNotifier(slog.New(slog.DiscardHandler), store, nil, nil, clock.NewFake(testNow))

	err := notifier.Notify(t.Context(), &models.Notification{TenantID: "acme", Message: "x"})
	assert.ErrorContains(t, err, "disk full")
}

func TestNotifier_WebhookChannel(t *testing.T) {
	var received models.Notification

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	webhook, err := NewWebhook(server.URL, RetryConfig{Attempts: 1}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	store := &mocks.MockEntityRepository{}
	store.On("SaveNotification", mock.Anything, mock.Anything).Return(nil)

	notifier := NewNotifier(slog.New(slog.DiscardHandler), store, nil, webhook, clock.NewFake(testNow))
	require.NoError(t, notifier.Notify(t.Context(), &models.Notification{TenantID: "acme", Channel: ChannelWebhook, Message: "hot lead"}))

	assert.Equal(t, "hot lead", received.Message)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook, err := NewWebhook(server.URL, RetryConfig{Attempts: 3, Delay: time.Millisecond}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, webhook.Deliver(t.Context(), &models.Notification{Message: "x"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhook_DoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	webhook, err := NewWebhook(server.URL, RetryConfig{Attempts: 3}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	err = webhook.Deliver(t.Context(), &models.Notification{Message: "x"})
	assert.ErrorIs(t, err, ErrWebhookRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewWebhook_RequiresURL(t *testing.T) {
	_, err := NewWebhook("", RetryConfig{}, slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, ErrWebhookURLRequired)
}

func TestBusMailer_PublishesEmailRequest(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "acme", mock.MatchedBy(func(event *events.EmailSendRequested) bool {
		return event.Subject == "Checking in" && event.EntityID == "c-1" && event.TenantID == "acme"
	})).Return(nil)

	mailer := NewBusMailer(bus)
	require.NoError(t, mailer.Send(t.Context(), Email{TenantID: "acme", EntityType: "contact", EntityID: "c-1", Subject: "Checking in"}))
	bus.AssertExpectations(t)

	assert.ErrorIs(t, NewBusMailer(nil).Send(t.Context(), Email{}), ErrMailerUnavailable)
}
