package salon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"17:30", 1050, false},
		{" 08:15:00 ", 495, false},
		{"24:00", 1440, false},
		{"9am", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeeklyHoursWorkingDaysAndDescribe(t *testing.T) {
	var w WeeklyHours
	assert.False(t, w.HasAnyHours())
	assert.Equal(t, "no working days", w.Describe())

	w.Set(time.Sunday, &DayHours{Open: "10:00", Close: "14:00"})
	w.Set(time.Tuesday, &DayHours{Open: "09:00", Close: "17:00"})

	assert.Equal(t, []time.Weekday{time.Tuesday, time.Sunday}, w.WorkingDays())
	assert.Equal(t, "Tuesday 09:00-17:00, Sunday 10:00-14:00", w.Describe())

	w.Set(time.Sunday, nil)
	assert.Nil(t, w.ForDay(time.Sunday))
}

func TestWeeklyHoursIsOpenAt(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	w := WeeklyHours{Monday: &DayHours{Open: "09:00", Close: "17:00"}}

	// 2024-03-04 is a Monday.
	assert.True(t, w.IsOpenAt(time.Date(2024, 3, 4, 9, 0, 0, 0, loc), loc))
	assert.False(t, w.IsOpenAt(time.Date(2024, 3, 4, 17, 0, 0, 0, loc), loc))
	assert.False(t, w.IsOpenAt(time.Date(2024, 3, 5, 10, 0, 0, 0, loc), loc))

	// 14:30 UTC is 09:30 in New York.
	assert.True(t, w.IsOpenAt(time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC), loc))

	var always WeeklyHours
	assert.True(t, always.IsOpenAt(time.Now(), nil))
}
