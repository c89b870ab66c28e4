package market

import (
	"fmt"
	"time"
)

// SessionState classifies a timestamp against the trading calendar.
type SessionState string

const (
	SessionOpen   SessionState = "OPEN"
	SessionClosed SessionState = "CLOSED"
	SessionPre    SessionState = "PRE"
	SessionPost   SessionState = "POST"
)

// Status describes the calendar state at a point in time.
type Status struct {
	State      SessionState `json:"state"`
	Reason     string       `json:"reason"`
	NextChange time.Time    `json:"next_change"`
}

func (s Status) Open() bool { return s.State == SessionOpen }

var ist = time.FixedZone("IST", 5*3600+1800)

// IST returns the exchange time zone.
func IST() *time.Location { return ist }

// Calendar models NSE trading hours: 09:15-15:30 IST regular session,
// 09:00 pre-open, 15:45 post-close, weekends and exchange holidays closed.
type Calendar struct {
	holidays map[string]string // "2006-01-02" -> name
}

// nseHolidays2024 lists exchange holidays (update yearly).
var nseHolidays2024 = map[string]string{
	"2024-01-26": "Republic Day",
	"2024-03-08": "Mahashivratri",
	"2024-03-25": "Holi",
	"2024-03-29": "Good Friday",
	"2024-04-11": "Eid-Ul-Fitr",
	"2024-04-17": "Ram Navami",
	"2024-05-01": "Maharashtra Day",
	"2024-06-17": "Bakri Eid",
	"2024-08-15": "Independence Day",
	"2024-09-02": "Ganesh Chaturthi",
	"2024-10-02": "Gandhi Jayanti",
	"2024-11-01": "Diwali Laxmi Pujan",
	"2024-11-15": "Gurunanak Jayanti",
	"2024-12-25": "Christmas",
}

func NewCalendar() *Calendar {
	return &Calendar{holidays: nseHolidays2024}
}

const (
	preOpenMinute = 9 * 60     // 09:00
	openMinute    = 9*60 + 15  // 09:15
	closeMinute   = 15*60 + 30 // 15:30
	postEndMinute = 15*60 + 45 // 15:45
)

func (c *Calendar) holiday(t time.Time) (string, bool) {
	name, ok := c.holidays[t.In(ist).Format("2006-01-02")]
	return name, ok
}

func (c *Calendar) weekend(t time.Time) bool {
	wd := t.In(ist).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (c *Calendar) tradingDay(t time.Time) bool {
	if c.weekend(t) {
		return false
	}
	_, holiday := c.holiday(t)
	return !holiday
}

// IsOpen reports whether the regular session is open at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	return c.Status(t).Open()
}

// Status returns the session state at t with a human-readable reason and
// the time of the next state transition.
func (c *Calendar) Status(t time.Time) Status {
	local := t.In(ist)
	minute := local.Hour()*60 + local.Minute()

	if c.tradingDay(local) {
		switch {
		case minute >= openMinute && minute < closeMinute:
			return Status{
				State:      SessionOpen,
				Reason:     "regular session",
				NextChange: atMinute(local, closeMinute),
			}
		case minute >= preOpenMinute && minute < openMinute:
			return Status{
				State:      SessionPre,
				Reason:     "pre-market",
				NextChange: atMinute(local, openMinute),
			}
		case minute >= closeMinute && minute < postEndMinute:
			return Status{
				State:      SessionPost,
				Reason:     "post-market",
				NextChange: atMinute(local, postEndMinute),
			}
		}
	}

	reason := "after hours"
	if c.weekend(local) {
		reason = "weekend"
	} else if name, ok := c.holiday(local); ok {
		reason = fmt.Sprintf("holiday (%s)", name)
	}
	return Status{
		State:      SessionClosed,
		Reason:     reason,
		NextChange: c.NextOpen(local),
	}
}

// NextOpen returns the next regular-session open at or after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	local := t.In(ist)
	day := local
	if local.Hour()*60+local.Minute() >= openMinute {
		day = day.AddDate(0, 0, 1)
	}
	for !c.tradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return atMinute(day, openMinute)
}

func atMinute(day time.Time, minute int) time.Time {
	local := day.In(ist)
	return time.Date(local.Year(), local.Month(), local.Day(), minute/60, minute%60, 0, 0, ist)
}
