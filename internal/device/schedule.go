package device

import "time"

// Schedule is a wall-clock slot. Weekday is -1 for every day, otherwise
// 0 (Sunday) to 6.
type Schedule struct {
	Weekday int
	Hour    int
	Minute  int
}

// Daily returns a slot matching every day at hour:minute.
func Daily(hour, minute int) Schedule {
	return Schedule{Weekday: -1, Hour: hour, Minute: minute}
}

// Weekly returns a slot matching day at hour:minute.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return Schedule{Weekday: int(day), Hour: hour, Minute: minute}
}

// Matches reports whether t falls in the slot's minute.
func (s Schedule) Matches(t time.Time) bool {
	if s.Weekday >= 0 && int(t.Weekday()) != s.Weekday {
		return false
	}
	return t.Hour() == s.Hour && t.Minute() == s.Minute
}

// Trigger fires a Schedule at most once per matching minute, however
// often it is polled within that minute.
type Trigger struct {
	sched Schedule
	last  time.Time
}

// NewTrigger returns a Trigger that has never fired.
func NewTrigger(s Schedule) *Trigger {
	return &Trigger{sched: s}
}

// Due reports whether the slot matches now and has not fired in this
// minute yet. A true result consumes the minute.
func (t *Trigger) Due(now time.Time) bool {
	if !t.sched.Matches(now) {
		return false
	}
	minute := now.Truncate(time.Minute)
	if minute.Equal(t.last) {
		return false
	}
	t.last = minute
	return true
}

// LastFired returns the minute the trigger last fired, or zero.
func (t *Trigger) LastFired() time.Time {
	return t.last
}
