package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

// ScheduleEntry is one slot of the fixed weekly schedule. Entries are
// immutable once parsed; the whole table is configuration, never derived at
// runtime.
type ScheduleEntry struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	Kind    models.ActionKind
}

// SlotKey identifies the entry across occurrences, e.g. "mon-09:15-post".
func (e ScheduleEntry) SlotKey() string {
	return fmt.Sprintf("%s-%02d:%02d-%s", strings.ToLower(e.Weekday.String()[:3]), e.Hour, e.Minute, e.Kind)
}

// minuteOfWeek counts minutes since Sunday 00:00.
func (e ScheduleEntry) minuteOfWeek() int {
	return int(e.Weekday)*24*60 + e.Hour*60 + e.Minute
}

// Occurrence returns the occurrence of this entry closest to now, which may
// be on the previous or next calendar day when now sits just across
// midnight from the slot.
func (e ScheduleEntry) Occurrence(now time.Time) time.Time {
	now = now.UTC()
	base := now.AddDate(0, 0, int(e.Weekday-now.Weekday()))
	candidate := time.Date(base.Year(), base.Month(), base.Day(), e.Hour, e.Minute, 0, 0, time.UTC)

	closest := candidate
	for _, alt := range []time.Time{candidate.AddDate(0, 0, -7), candidate.AddDate(0, 0, 7)} {
		if absDuration(now.Sub(alt)) < absDuration(now.Sub(closest)) {
			closest = alt
		}
	}
	return closest
}

// WindowKey is the dedup window for one calendar occurrence: the UTC date
// of the occurrence itself, not of the trigger, so a trigger firing a minute
// after midnight still deduplicates against the slot's own day.
func (e ScheduleEntry) WindowKey(now time.Time) string {
	return e.Occurrence(now).Format("2006-01-02")
}

type Schedule struct {
	entries []ScheduleEntry
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func ParseSchedule(slots []config.ScheduleSlot) (*Schedule, error) {
	entries := make([]ScheduleEntry, 0, len(slots))
	for _, slot := range slots {
		weekday, ok := weekdays[strings.ToLower(strings.TrimSpace(slot.Day))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday in schedule: %q", slot.Day)
		}
		parts := strings.SplitN(slot.At, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time in schedule: %q", slot.At)
		}
		hour, err := strconv.Atoi(parts[0])
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour in schedule: %q", slot.At)
		}
		minute, err := strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid minute in schedule: %q", slot.At)
		}
		entries = append(entries, ScheduleEntry{
			Weekday: weekday,
			Hour:    hour,
			Minute:  minute,
			Kind:    models.ActionKind(slot.Kind),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].minuteOfWeek() < entries[j].minuteOfWeek()
	})
	return &Schedule{entries: entries}, nil
}

func (s *Schedule) Entries() []ScheduleEntry {
	return s.entries
}

// Due returns the entries whose weekly slot falls within ±tolerance of now,
// in ascending time order. With a well-formed schedule (no two slots within
// twice the tolerance) at most one entry matches.
func (s *Schedule) Due(now time.Time, tolerance time.Duration) []ScheduleEntry {
	const week = 7 * 24 * 60
	nowUTC := now.UTC()
	nowMinute := int(nowUTC.Weekday())*24*60 + nowUTC.Hour()*60 + nowUTC.Minute()
	tolMinutes := int(tolerance.Minutes())

	var due []ScheduleEntry
	for _, e := range s.entries {
		diff := nowMinute - e.minuteOfWeek()
		// Shortest distance around the weekly wheel
		if diff > week/2 {
			diff -= week
		} else if diff < -week/2 {
			diff += week
		}
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolMinutes {
			due = append(due, e)
		}
	}
	return due
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
