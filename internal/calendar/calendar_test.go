package calendar

import (
	"testing"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_OK(t *testing.T) {
	require.NoError(t, Validate("*/5 * * * *"))
	require.NoError(t, Validate("0 9 * * 1-5"))
}

func TestValidate_Rejects(t *testing.T) {
	err := Validate("not a cron expr")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}

func TestNext_EveryFiveMinutesUTC(t *testing.T) {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := Next("*/5 * * * *", "UTC", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), next)
}

func TestNext_DefaultsToUTCWhenZoneEmpty(t *testing.T) {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := Next("0 9 * * *", "", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestNext_UnknownZone(t *testing.T) {
	_, err := Next("* * * * *", "Not/AZone", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}

func TestNext_RespectsNamedZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 09:00 local in New York, well clear of any DST boundary in this range.
	after := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)

	next, err := Next("0 9 * * *", "America/New_York", after)
	require.NoError(t, err)

	local := next.In(loc)
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, 2024, local.Year())
	assert.Equal(t, time.March, local.Month())
	assert.Equal(t, 1, local.Day())
}

func TestNext_SpringForwardSkipsToValidInstant(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// US spring-forward 2024: 2024-03-10 02:00 local does not exist (clocks
	// jump to 03:00). A 2:30 AM daily fire must resolve to the next valid
	// occurrence, not panic or silently drop a day.
	after := time.Date(2024, 3, 9, 12, 0, 0, 0, loc)

	next, err := Next("30 2 * * *", "America/New_York", after)
	require.NoError(t, err)
	assert.True(t, next.After(after))
}
