package triggers

import (
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestOccurrence(t *testing.T) {
	schedule, err := models.ScheduledConfig{Cron: "*/15 * * * *"}.Schedule()
	require.NoError(t, err)

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	latest, ok := LatestOccurrence(schedule, start, start.Add(40*time.Minute))
	require.True(t, ok)
	assert.Equal(t, start.Add(30*time.Minute), latest)

	_, ok = LatestOccurrence(schedule, start, start.Add(10*time.Minute))
	assert.False(t, ok)
}
