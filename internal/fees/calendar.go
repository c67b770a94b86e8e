package fees

import (
	"context"
	"time"
)

// NoHolidays treats every day as a business day.
type NoHolidays struct{}

// BusinessDays implements Calendar.
func (NoHolidays) BusinessDays(_ context.Context, from, to time.Time) (int, error) {
	n := DaysBetween(from, to)
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// HolidaySource lists school holidays overlapping a date range.
type HolidaySource interface {
	ListHolidays(ctx context.Context, from, to time.Time) ([]Holiday, error)
}

// StoreCalendar skips configured weekend days and stored holiday ranges.
type StoreCalendar struct {
	source  HolidaySource
	weekend map[time.Weekday]bool
}

// NewStoreCalendar builds a calendar over source. The weekend days are
// never counted as business days.
func NewStoreCalendar(source HolidaySource, weekend ...time.Weekday) *StoreCalendar {
	set := make(map[time.Weekday]bool, len(weekend))
	for _, d := range weekend {
		set[d] = true
	}
	return &StoreCalendar{source: source, weekend: set}
}

// BusinessDays implements Calendar.
func (c *StoreCalendar) BusinessDays(ctx context.Context, from, to time.Time) (int, error) {
	from, to = dateOnly(from), dateOnly(to)
	if !to.After(from) {
		return 0, nil
	}
	var holidays []Holiday
	if c.source != nil {
		var err error
		holidays, err = c.source.ListHolidays(ctx, from.AddDate(0, 0, 1), to)
		if err != nil {
			return 0, err
		}
	}
	count := 0
	for day := from.AddDate(0, 0, 1); !day.After(to); day = day.AddDate(0, 0, 1) {
		if c.weekend[day.Weekday()] || isHoliday(day, holidays) {
			continue
		}
		count++
	}
	return count, nil
}

func isHoliday(day time.Time, holidays []Holiday) bool {
	for _, h := range holidays {
		if DaysBetween(h.StartDate, day) >= 0 && DaysBetween(day, h.EndDate) >= 0 {
			return true
		}
	}
	return false
}
