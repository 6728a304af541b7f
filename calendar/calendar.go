package calendar

import "time"

// TradingCalendar answers trading-day arithmetic for holding-period rules.
// Weekends are always excluded; exchange holidays are injected at
// construction so the engine itself stays calendar-agnostic.
type TradingCalendar struct {
	holidays map[string]bool // keyed YYYY-MM-DD
}

// NewTradingCalendar builds a calendar with the given holiday dates.
// A nil or empty slice yields a weekday-only calendar.
func NewTradingCalendar(holidays []time.Time) *TradingCalendar {
	c := &TradingCalendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format("2006-01-02")] = true
	}
	return c
}

// IsTradingDay reports whether t falls on a tradable session day.
func (c *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[t.Format("2006-01-02")]
}

// TradingDaysBetween counts trading days strictly after from, up to and
// including to. Returns 0 when to is on or before from's date. Day
// boundaries are taken in from's location, so mixed-zone inputs cannot
// shift the count by a day.
func (c *TradingCalendar) TradingDaysBetween(from, to time.Time) int {
	loc := from.Location()
	to = to.In(loc)
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)
	days := 0
	for d := fromDay.AddDate(0, 0, 1); !d.After(toDay); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days++
		}
	}
	return days
}
