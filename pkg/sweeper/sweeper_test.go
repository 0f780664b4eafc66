package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	ticks  []*models.CRMEvent
	cancel context.CancelFunc
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	received := event.(*events.CRMEventReceived)
	r.ticks = append(r.ticks, received.Event)

	if r.cancel != nil {
		r.cancel()
	}

	return nil
}

type countingTicker struct {
	calls int
}

func (c *countingTicker) Tick(_ context.Context, _ string) (int, error) {
	c.calls++

	return 2, nil
}

type fixture struct {
	sweeper   *Sweeper
	publisher *recordingPublisher
	ticker    *countingTicker
	clock     *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	clk := clock.NewFake(start)

	ctx := t.Context()
	rules := p.RuleRepository()
	entities := p.EntityRepository()

	require.NoError(t, rules.Save(ctx, testutil.CreateTestRule("acme",
		testutil.WithTrigger(models.NoReplyAfterDaysConfig{Days: 3}))))
	require.NoError(t, rules.Save(ctx, testutil.CreateTestRule("globex")))

	for _, entity := range []*models.Entity{
		testutil.CreateTestEntity("acme", models.EntityTypeContact, "c-1", nil),
		testutil.CreateTestEntity("acme", models.EntityTypeDeal, "d-1", nil),
		testutil.CreateTestEntity("globex", models.EntityTypeDeal, "d-9", nil),
	} {
		require.NoError(t, entities.SaveEntity(ctx, entity))
	}

	publisher := &recordingPublisher{}
	ticker := &countingTicker{}

	return &fixture{
		sweeper:   New(slog.New(slog.DiscardHandler), p, publisher, ticker, kvstore.NewMemory(clk), nil, clk),
		publisher: publisher,
		ticker:    ticker,
		clock:     clk,
	}
}

func TestSweep_TicksEntitiesOfTenantsWithTimeBasedRules(t *testing.T) {
	f := newFixture(t)

	result, err := f.sweeper.Sweep(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Tenants)
	assert.Equal(t, 2, result.Ticks)
	assert.Equal(t, 2, result.Advanced)
	assert.Equal(t, 1, f.ticker.calls)

	require.Len(t, f.publisher.ticks, 2)

	for _, tick := range f.publisher.ticks {
		assert.Equal(t, models.EventScheduleTick, tick.Type)
		assert.Equal(t, "acme", tick.TenantID)
		assert.Equal(t, start, tick.OccurredAt)

		_, ok := tick.PreviousTickAt()
		assert.False(t, ok, "first sweep has no previous tick")
	}
}

func TestSweep_CarriesPreviousTickTime(t *testing.T) {
	f := newFixture(t)

	_, err := f.sweeper.Sweep(t.Context())
	require.NoError(t, err)

	f.clock.Add(time.Minute)

	_, err = f.sweeper.Sweep(t.Context())
	require.NoError(t, err)

	require.Len(t, f.publisher.ticks, 4)

	previous, ok := f.publisher.ticks[3].PreviousTickAt()
	require.True(t, ok)
	assert.True(t, previous.Equal(start))
}

func TestSweep_StopsWhenCancelled(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(t.Context())
	f.publisher.cancel = cancel

	_, err := f.sweeper.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, f.publisher.ticks, 1)
	assert.Zero(t, f.ticker.calls)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- f.sweeper.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()

		return len(f.publisher.ticks) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
