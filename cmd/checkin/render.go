package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"classcheck/internal/backend"
	"classcheck/internal/history"
	"classcheck/internal/localstore"
	"classcheck/internal/notices"
	"classcheck/internal/session"
	"classcheck/internal/timetable"
)

func printSnapshot(s session.Snapshot) {
	v := s.View
	line := fmt.Sprintf("[%s] %s", v.Tag, v.Title)
	if v.Subtitle != "" {
		line += " - " + v.Subtitle
	}
	fmt.Println(line)

	details := []string{fmt.Sprintf("range %.0f%%", s.Gauge)}
	if s.HasHeading {
		details = append(details, fmt.Sprintf("heading %d°", s.Heading))
	}
	if s.Laptop {
		details = append(details, "laptop mode")
	}
	if s.Phase != session.Idle {
		details = append(details, s.Phase.String())
	}
	fmt.Println("  " + strings.Join(details, ", "))
}

type boardSource interface {
	notices.Source
	timetable.Source
}

func showBoard(ctx context.Context, store localstore.Store, src boardSource, loc *time.Location, dismiss bool, log zerolog.Logger) {
	board := notices.NewBoard(store)
	st, err := board.Load(ctx, src)
	if err != nil {
		log.Warn().Err(err).Msg("notices unavailable")
	}
	if st.Active != nil {
		fmt.Printf("NOTICE: %s\n", st.Active.Msg)
		if st.Active.Link != "" {
			fmt.Printf("  %s\n", st.Active.Link)
		}
		if dismiss {
			if err := board.Dismiss(*st.Active); err != nil {
				log.Warn().Err(err).Msg("dismiss failed")
			}
		}
	}
	for _, n := range st.History {
		fmt.Printf("  - %s\n", n.Msg)
	}

	tt, err := src.Timetable(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("timetable unavailable")
		return
	}
	printDay(timetable.Build(tt, time.Now(), loc))
}

func printDay(d timetable.Day) {
	fmt.Printf("%s, %s  progress %d%%\n", d.Weekday, d.Date, d.Progress)
	if d.Holiday != nil {
		fmt.Printf("  Holiday: %s (%s)\n", d.Holiday.Name, d.Holiday.Type)
		return
	}
	if len(d.Slots) == 0 {
		fmt.Println("  No classes today")
		return
	}
	for _, s := range d.Slots {
		fmt.Println("  " + slotLine(s, d.Minute))
	}
	switch {
	case d.Active != nil:
		fmt.Printf("  Now: %s, %d min left\n", d.Active.Subject, d.Active.Remaining(d.Minute))
	case d.Next != nil:
		fmt.Printf("  Next: %s in %d min\n", d.Next.Subject, d.Next.StartsIn(d.Minute))
	default:
		fmt.Println("  Classes over for today")
	}
}

func slotLine(s timetable.Slot, minute int) string {
	line := fmt.Sprintf("%s-%s %-24s %-16s %s", s.StartRaw, s.EndRaw, s.Subject, s.Faculty, s.State)
	if s.IsCancelled {
		line += " CANCELLED"
		if s.CancelNote != "" {
			line += " (" + s.CancelNote + ")"
		}
	} else if s.State == timetable.Ongoing {
		line += fmt.Sprintf(" %.0f%%", s.Elapsed(minute))
	}
	return line
}

func printHistory(entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Println("No check-ins yet")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %s (%s)  room %s\n", e.Time, e.Name, e.Roll, e.Room)
	}
}

var _ boardSource = (*backend.Client)(nil)
