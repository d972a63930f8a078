package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrSlotNotFound       = errors.New("slot not found")
	ErrInvalidDate        = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime        = errors.New("invalid time, expected HH:MM or HH:MM:SS")
	ErrInvalidSlotType    = errors.New("invalid slot type")
	ErrInvalidWeekday     = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidTemplate    = errors.New("invalid working day template")
	ErrIntervalMismatch   = errors.New("start time does not match an interval boundary")
	ErrDuplicateStartTime = errors.New("start time listed more than once")
	ErrRangeTooLong       = errors.New("date range is too long")
	ErrSlotHasAppointment = errors.New("slot has an active appointment")
)

type SlotType string

const (
	SlotAvailable   SlotType = "AVAILABLE"
	SlotUnavailable SlotType = "UNAVAILABLE"
	SlotSurgery     SlotType = "SURGERY"
	SlotBreak       SlotType = "BREAK"
)

func (t SlotType) Valid() bool {
	switch t {
	case SlotAvailable, SlotUnavailable, SlotSurgery, SlotBreak:
		return true
	}
	return false
}

// ParseSlotType accepts any letter case.
func ParseSlotType(s string) (SlotType, error) {
	t := SlotType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlotType, s)
	}
	return t, nil
}

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday { return d.In(time.UTC).Weekday() }

func (d Date) AddDays(n int) Date { return DateOf(d.In(time.UTC).AddDate(0, 0, n)) }

func (d Date) Before(o Date) bool { return d.In(time.UTC).Before(o.In(time.UTC)) }

func (d Date) After(o Date) bool { return o.Before(d) }

// DaysUntil returns the number of days from d to o, negative when o is earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.In(time.UTC).Sub(d.In(time.UTC)).Hours() / 24)
}

func (d Date) String() string { return d.In(time.UTC).Format(dateLayout) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day in seconds since midnight.
type Clock int

const secondsPerDay = 24 * 60 * 60

func NewClock(hour, minute int) Clock { return Clock(hour*3600 + minute*60) }

// ParseClock accepts 24-hour HH:MM and HH:MM:SS.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
}

func (c Clock) Hour() int   { return int(c) / 3600 }
func (c Clock) Minute() int { return int(c) % 3600 / 60 }
func (c Clock) Second() int { return int(c) % 60 }

func (c Clock) Add(d time.Duration) Clock { return c + Clock(d/time.Second) }

func (c Clock) Duration() time.Duration { return time.Duration(c) * time.Second }

func (c Clock) String() string {
	if c.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
	}
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// At returns the instant of c on date d in loc.
func At(d Date, c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), c.Second(), 0, loc)
}

// SlotKey identifies the unit of booking serialization.
type SlotKey struct {
	DoctorID  uuid.UUID
	Date      Date
	StartTime Clock
}

func (k SlotKey) LockKey() string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", k.DoctorID, k.Date, k.StartTime)
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DoctorID, k.Date, k.StartTime)
}

type Slot struct {
	DoctorID  uuid.UUID
	Date      Date
	StartTime Clock
	EndTime   Clock
	Type      SlotType
	UpdatedAt time.Time
}

func (s Slot) Key() SlotKey {
	return SlotKey{DoctorID: s.DoctorID, Date: s.Date, StartTime: s.StartTime}
}

// SlotUpdate re-types the interval starting at StartTime.
type SlotUpdate struct {
	StartTime Clock
	Type      SlotType
}

// SlotView is the read-time combination of a slot and ledger occupancy.
type SlotView struct {
	StartTime     Clock
	EndTime       Clock
	EffectiveType SlotType
	IsBookable    bool
	IsBooked      bool
	InPast        bool
}

// Template is a doctor's working day: [DayStart, DayEnd) cut into fixed SlotLength intervals.
type Template struct {
	DayStart   Clock
	DayEnd     Clock
	SlotLength time.Duration
}

func (t Template) Validate() error {
	switch {
	case t.SlotLength < time.Minute:
		return fmt.Errorf("%w: slot length %s", ErrInvalidTemplate, t.SlotLength)
	case t.DayStart < 0 || t.DayEnd > secondsPerDay:
		return fmt.Errorf("%w: day bounds %s-%s", ErrInvalidTemplate, t.DayStart, t.DayEnd)
	case t.DayStart.Add(t.SlotLength) > t.DayEnd:
		return fmt.Errorf("%w: day %s-%s shorter than one slot", ErrInvalidTemplate, t.DayStart, t.DayEnd)
	}
	return nil
}

// ParseTemplate builds a Template from "HH:MM" bounds and a slot width in minutes.
func ParseTemplate(dayStart, dayEnd string, slotMinutes int) (Template, error) {
	start, err := ParseClock(dayStart)
	if err != nil {
		return Template{}, err
	}
	end, err := ParseClock(dayEnd)
	if err != nil {
		return Template{}, err
	}
	t := Template{DayStart: start, DayEnd: end, SlotLength: time.Duration(slotMinutes) * time.Minute}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Starts lists the interval start times. A trailing remainder shorter than SlotLength is dropped.
func (t Template) Starts() []Clock {
	var out []Clock
	for c := t.DayStart; c.Add(t.SlotLength) <= t.DayEnd; c = c.Add(t.SlotLength) {
		out = append(out, c)
	}
	return out
}

func (t Template) HasBoundary(c Clock) bool {
	if c < t.DayStart || c.Add(t.SlotLength) > t.DayEnd {
		return false
	}
	return (c-t.DayStart).Duration()%t.SlotLength == 0
}

// Materialize builds an all-AVAILABLE day for doctorID on date.
func (t Template) Materialize(doctorID uuid.UUID, date Date) []Slot {
	starts := t.Starts()
	slots := make([]Slot, 0, len(starts))
	for _, c := range starts {
		slots = append(slots, Slot{
			DoctorID:  doctorID,
			Date:      date,
			StartTime: c,
			EndTime:   c.Add(t.SlotLength),
			Type:      SlotAvailable,
		})
	}
	return slots
}

// RecurringRequest assigns slot types on every date in [StartDate, EndDate] whose weekday is listed.
type RecurringRequest struct {
	DoctorID    uuid.UUID
	StartDate   Date
	EndDate     Date
	Weekdays    []time.Weekday
	Assignments []SlotUpdate
}

type SkipReason string

const (
	SkipHasAppointment SkipReason = "HAS_APPOINTMENT"
	SkipSlotBusy       SkipReason = "SLOT_BUSY"
	SkipNoSuchInterval SkipReason = "NO_SUCH_INTERVAL"
)

type SkippedSlot struct {
	Date      Date
	StartTime Clock
	Reason    SkipReason
}

type RecurringResult struct {
	AppliedDates []Date
	SkippedSlots []SkippedSlot
}

// FullyApplied reports whether no assignment was skipped.
func (r RecurringResult) FullyApplied() bool { return len(r.SkippedSlots) == 0 }
