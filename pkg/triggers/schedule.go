package triggers

import (
	"time"

	"github.com/robfig/cron/v3"
)

const maxOccurrenceScan = 10000

// LatestOccurrence returns the newest activation of schedule in the window (after, upTo].
// Activations are computed in the schedule's own location.
func LatestOccurrence(schedule cron.Schedule, after, upTo time.Time) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)

	next := schedule.Next(after)

	for range maxOccurrenceScan {
		if next.IsZero() || next.After(upTo) {
			break
		}

		latest, found = next, true
		next = schedule.Next(next)
	}

	return latest, found
}
