package reentry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dhkwon/talos/internal/contracts"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCanRebuy_NoRecord(t *testing.T) {
	tr := NewTracker(65, 90)
	assert.True(t, tr.CanRebuy("AAPL", 10, day(2024, 1, 15)))
}

func TestCanRebuy_LiveRecordRequiresThreshold(t *testing.T) {
	tr := NewTracker(65, 90)
	tr.RecordStop("AAPL", day(2024, 1, 10), 50, contracts.ExitStopLoss)

	asOf := day(2024, 2, 1)
	assert.False(t, tr.CanRebuy("AAPL", 65, asOf), "at the threshold is not above it")
	assert.False(t, tr.CanRebuy("AAPL", 60, asOf))
	assert.True(t, tr.CanRebuy("AAPL", 66, asOf))
}

func TestCanRebuy_RecordExpiry(t *testing.T) {
	tr := NewTracker(65, 90)
	stopDate := day(2024, 1, 10)
	tr.RecordStop("AAPL", stopDate, 50, contracts.ExitTrailingStop)

	lastLive := stopDate.AddDate(0, 0, 90)
	assert.False(t, tr.CanRebuy("AAPL", 10, lastLive), "record still live on day 90")
	assert.True(t, tr.CanRebuy("AAPL", 10, lastLive.AddDate(0, 0, 1)), "expired on day 91")
}

func TestRecordStop_NewerReplacesOlder(t *testing.T) {
	tr := NewTracker(65, 90)
	tr.RecordStop("AAPL", day(2024, 1, 10), 50, contracts.ExitStopLoss)
	tr.RecordStop("AAPL", day(2024, 3, 1), 70, contracts.ExitTrailingStop)

	// The old record would have expired by June; the new one has not.
	assert.False(t, tr.CanRebuy("AAPL", 10, day(2024, 5, 20)))

	active := tr.Active(day(2024, 5, 20))
	assert.Len(t, active, 1)
	assert.Equal(t, contracts.ExitTrailingStop, active[0].Reason)
}

func TestPrune(t *testing.T) {
	tr := NewTracker(65, 30)
	tr.RecordStop("OLD", day(2024, 1, 1), 50, contracts.ExitStopLoss)
	tr.RecordStop("NEW", day(2024, 2, 20), 50, contracts.ExitStopLoss)

	tr.Prune(day(2024, 3, 1))

	active := tr.Active(day(2024, 3, 1))
	assert.Len(t, active, 1)
	assert.Equal(t, "NEW", active[0].Symbol)

	assert.True(t, tr.CanRebuy("OLD", 0, day(2024, 3, 1)))
	assert.False(t, tr.CanRebuy("NEW", 50, day(2024, 3, 1)))
}

func TestZeroLookback_ExpiresNextDay(t *testing.T) {
	tr := NewTracker(65, 0)
	tr.RecordStop("AAPL", day(2024, 1, 10), 50, contracts.ExitStopLoss)

	assert.False(t, tr.CanRebuy("AAPL", 10, day(2024, 1, 10)))
	assert.True(t, tr.CanRebuy("AAPL", 10, day(2024, 1, 11)))
}
