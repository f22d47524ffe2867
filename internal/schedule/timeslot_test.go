package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSlotStartsMorningCadence(t *testing.T) {
	ts, err := NewTimeSlot(NewClock(8, 0), NewClock(12, 0), 30, 5)
	require.NoError(t, err)

	got := ts.Starts()
	want := []Clock{
		NewClock(8, 0), NewClock(8, 35), NewClock(9, 10), NewClock(9, 45),
		NewClock(10, 20), NewClock(10, 55), NewClock(11, 30),
	}
	assert.Equal(t, want, got)
}

func TestTimeSlotStartsProperties(t *testing.T) {
	cases := []struct {
		start, end Clock
		dur, brk   int
	}{
		{NewClock(8, 0), NewClock(12, 0), 30, 5},
		{NewClock(0, 0), NewClock(23, 59), 15, 0},
		{NewClock(13, 10), NewClock(13, 11), 45, 15},
		{NewClock(20, 0), EndOfDay, 50, 10},
		{NewClock(9, 0), NewClock(17, 0), 480, 0},
	}

	for _, tc := range cases {
		ts, err := NewTimeSlot(tc.start, tc.end, tc.dur, tc.brk)
		require.NoError(t, err)

		starts := ts.Starts()
		require.NotEmpty(t, starts)
		assert.Equal(t, tc.start, starts[0])
		for i, s := range starts {
			assert.GreaterOrEqual(t, s, tc.start)
			assert.Less(t, s, tc.end)
			assert.Less(t, s, EndOfDay)
			if i > 0 {
				assert.Equal(t, Clock(tc.dur+tc.brk), s-starts[i-1])
			}
		}
	}
}

func TestTimeSlotStopsBeforeMidnight(t *testing.T) {
	ts, err := NewTimeSlot(NewClock(23, 0), EndOfDay, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, []Clock{NewClock(23, 0), NewClock(23, 30)}, ts.Starts())
}

func TestTimeSlotAllIsRestartable(t *testing.T) {
	ts, err := NewTimeSlot(NewClock(9, 0), NewClock(10, 0), 20, 0)
	require.NoError(t, err)

	first := ts.Starts()
	second := ts.Starts()
	assert.Equal(t, first, second)

	var taken []Clock
	for c := range ts.All() {
		taken = append(taken, c)
		if len(taken) == 2 {
			break
		}
	}
	assert.Equal(t, first[:2], taken)
}

func TestTimeSlotValidate(t *testing.T) {
	cases := map[string]TimeSlot{
		"start after end":   {Start: NewClock(12, 0), End: NewClock(8, 0), AppointmentMinutes: 30},
		"equal bounds":      {Start: NewClock(8, 0), End: NewClock(8, 0), AppointmentMinutes: 30},
		"zero duration":     {Start: NewClock(8, 0), End: NewClock(9, 0)},
		"too short":         {Start: NewClock(8, 0), End: NewClock(9, 0), AppointmentMinutes: 10},
		"too long":          {Start: NewClock(8, 0), End: EndOfDay, AppointmentMinutes: 481},
		"negative break":    {Start: NewClock(8, 0), End: NewClock(9, 0), AppointmentMinutes: 30, BreakMinutes: -30},
		"end past midnight": {Start: NewClock(8, 0), End: EndOfDay + 1, AppointmentMinutes: 30},
	}
	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ts.Validate(), ErrInvalidTimeSlot)
			assert.Empty(t, ts.Starts())
		})
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:35")
	require.NoError(t, err)
	assert.Equal(t, NewClock(8, 35), c)
	assert.Equal(t, "08:35", c.String())

	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, c)

	c, err = ParseClock("17:45:30")
	require.NoError(t, err)
	assert.Equal(t, NewClock(17, 45), c)

	for _, bad := range []string{"", "8", "25:00", "24:01", "10:60", "ab:cd", "10:5"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
