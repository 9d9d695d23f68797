// Package timetable turns the weekly timetable feed into today's schedule as
// seen from the institution's local clock.
package timetable

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"classcheck/internal/backend"
)

// DefaultRefresh is how often the client rebuilds the schedule.
const DefaultRefresh = 60 * time.Second

type State int

const (
	Upcoming State = iota
	Ongoing
	Done
)

func (s State) String() string {
	switch s {
	case Ongoing:
		return "Ongoing"
	case Done:
		return "Done"
	default:
		return "Upcoming"
	}
}

// Slot is one of today's classes with its bounds in minutes after midnight.
type Slot struct {
	backend.Class
	Start int
	End   int
	State State
}

// Day is today's schedule at a given instant.
type Day struct {
	Weekday string
	Date    string
	Minute  int
	Slots   []Slot
	Holiday *backend.Holiday

	// Active is the class in progress, Next the first class starting later.
	// Cancelled classes are never active or next.
	Active *Slot
	Next   *Slot

	// Progress is the share of today's classes completed, 0-100, with the
	// ongoing class counting half.
	Progress int
}

// Minutes parses "HH:MM". Values without a colon read as midnight.
func Minutes(raw string) int {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0
	}
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	return hh*60 + mm
}

// Build selects today's classes from feed and classifies them against now.
func Build(feed backend.TimetableResponse, now time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	d := Day{
		Weekday: strings.ToUpper(local.Weekday().String()),
		Date:    local.Format("2006-01-02"),
		Minute:  local.Hour()*60 + local.Minute(),
	}
	if h, ok := feed.Holidays[d.Date]; ok {
		d.Holiday = &h
	}

	for _, c := range feed.Timetable {
		if strings.ToUpper(c.Day) != d.Weekday {
			continue
		}
		d.Slots = append(d.Slots, Slot{Class: c, Start: Minutes(c.StartRaw), End: Minutes(c.EndRaw)})
	}
	sort.SliceStable(d.Slots, func(i, j int) bool { return d.Slots[i].Start < d.Slots[j].Start })
	if len(d.Slots) == 0 {
		return d
	}

	var completed float64
	for i := range d.Slots {
		s := &d.Slots[i]
		switch {
		case d.Minute >= s.End:
			s.State = Done
			completed++
		case d.Minute >= s.Start:
			s.State = Ongoing
			completed += 0.5
		}
	}
	d.Progress = int(math.Min(100, math.Round(completed/float64(len(d.Slots))*100)))

	for i := range d.Slots {
		s := &d.Slots[i]
		if s.IsCancelled {
			continue
		}
		if d.Active == nil && s.State == Ongoing {
			d.Active = s
		}
		if d.Next == nil && s.Start > d.Minute {
			d.Next = s
		}
	}
	return d
}

// Elapsed is the active class's completion percentage, capped at 100.
func (s Slot) Elapsed(minute int) float64 {
	if s.End <= s.Start {
		return 100
	}
	return math.Min(100, float64(minute-s.Start)/float64(s.End-s.Start)*100)
}

// Remaining is the number of minutes until the slot ends.
func (s Slot) Remaining(minute int) int { return s.End - minute }

// StartsIn is the number of minutes until the slot starts.
func (s Slot) StartsIn(minute int) int { return s.Start - minute }

// Source fetches the timetable feed.
type Source interface {
	Timetable(ctx context.Context) (backend.TimetableResponse, error)
}

// Run rebuilds the schedule immediately and then every interval until ctx is
// done. Fetch errors are handed to fn; the caller keeps its previous Day.
func Run(ctx context.Context, src Source, loc *time.Location, interval time.Duration, fn func(Day, error)) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	tick := func() {
		feed, err := src.Timetable(ctx)
		if err != nil {
			fn(Day{}, err)
			return
		}
		fn(Build(feed, time.Now(), loc), nil)
	}

	tick()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}
