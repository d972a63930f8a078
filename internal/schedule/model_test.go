package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.June, Day: 2}, d)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2025-06-02", d.String())

	for _, bad := range []string{"", "2025-6-2", "02/06/2025", "2025-02-30"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2024, Month: time.February, Day: 28}
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d.AddDays(1))
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 1}, d.AddDays(2))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, 30, d.DaysUntil(d.AddDays(30)))
	assert.Equal(t, -1, d.DaysUntil(d.AddDays(-1)))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewClock(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	c, err = ParseClock("13:05:07")
	require.NoError(t, err)
	assert.Equal(t, "13:05:07", c.String())

	for _, bad := range []string{"", "9", "25:00", "12:60", "noon"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}

func TestDateAndClockJSON(t *testing.T) {
	type payload struct {
		Date  Date  `json:"date"`
		Start Clock `json:"start_time"`
	}

	data, err := json.Marshal(payload{Date: Date{2030, time.January, 7}, Start: NewClock(10, 0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2030-01-07","start_time":"10:00"}`, string(data))

	var back payload
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2030-01-08","start_time":"10:30:00"}`), &back))
	assert.Equal(t, Date{2030, time.January, 8}, back.Date)
	assert.Equal(t, NewClock(10, 30), back.Start)

	assert.Error(t, json.Unmarshal([]byte(`{"date":"tomorrow"}`), &back))
}

func TestParseSlotType(t *testing.T) {
	st, err := ParseSlotType("surgery")
	require.NoError(t, err)
	assert.Equal(t, SlotSurgery, st)

	_, err = ParseSlotType("LUNCH")
	assert.ErrorIs(t, err, ErrInvalidSlotType)
}

func TestTemplateMaterialize(t *testing.T) {
	tmpl, err := ParseTemplate("09:00", "17:00", 30)
	require.NoError(t, err)

	doctorID := uuid.New()
	date := Date{2030, time.January, 7}
	slots := tmpl.Materialize(doctorID, date)

	require.Len(t, slots, 16)
	assert.Equal(t, NewClock(9, 0), slots[0].StartTime)
	assert.Equal(t, NewClock(9, 30), slots[0].EndTime)
	assert.Equal(t, NewClock(16, 30), slots[15].StartTime)
	assert.Equal(t, NewClock(17, 0), slots[15].EndTime)
	for i, s := range slots {
		assert.Equal(t, SlotAvailable, s.Type)
		assert.Equal(t, doctorID, s.DoctorID)
		if i > 0 {
			assert.Equal(t, slots[i-1].EndTime, s.StartTime, "intervals are contiguous")
		}
	}
}

func TestTemplateDropsShortTail(t *testing.T) {
	tmpl := Template{DayStart: NewClock(9, 0), DayEnd: NewClock(10, 45), SlotLength: 30 * time.Minute}
	assert.Equal(t, []Clock{NewClock(9, 0), NewClock(9, 30), NewClock(10, 0)}, tmpl.Starts())
	assert.False(t, tmpl.HasBoundary(NewClock(10, 30)))
}

func TestTemplateHasBoundary(t *testing.T) {
	tmpl := Template{DayStart: NewClock(9, 0), DayEnd: NewClock(17, 0), SlotLength: 30 * time.Minute}

	assert.True(t, tmpl.HasBoundary(NewClock(9, 0)))
	assert.True(t, tmpl.HasBoundary(NewClock(16, 30)))
	assert.False(t, tmpl.HasBoundary(NewClock(9, 15)))
	assert.False(t, tmpl.HasBoundary(NewClock(17, 0)))
	assert.False(t, tmpl.HasBoundary(NewClock(8, 30)))
}

func TestTemplateValidate(t *testing.T) {
	_, err := ParseTemplate("17:00", "09:00", 30)
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = ParseTemplate("09:00", "17:00", 0)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestAtUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)

	at := At(Date{2030, time.March, 10}, NewClock(9, 0), loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, loc, at.Location())
	assert.Equal(t, 6, at.UTC().Hour())
}

func TestRecurringResultFullyApplied(t *testing.T) {
	assert.True(t, RecurringResult{}.FullyApplied())
	assert.False(t, RecurringResult{SkippedSlots: []SkippedSlot{{Reason: SkipHasAppointment}}}.FullyApplied())
}
