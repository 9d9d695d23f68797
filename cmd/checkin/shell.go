package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classcheck/internal/geo"
	"classcheck/internal/liveness"
	"classcheck/internal/sensor"
	"classcheck/internal/session"
	"classcheck/internal/timetable"
)

const (
	refreshInterval = time.Second
	commandHelp     = "commands: pos <lat> <lon> | heading <deg> | nocompass | scan <url> | pin <digits> | status | submit | quit"
)

// shell turns typed commands into session updates.
type shell struct {
	ctrl         *session.Controller
	positions    *sensor.Feed[sensor.Fix]
	orientations *sensor.Feed[sensor.Orientation]
	form         session.Form
	out          io.Writer
	log          zerolog.Logger
}

func (s *shell) scan(raw string) {
	stripped, ok := s.ctrl.Scan(raw)
	s.log.Debug().Str("url", stripped).Bool("valid", ok).Msg("entry scanned")
}

func (s *shell) position(lat, lon, accuracy float64) {
	s.positions.Publish(sensor.Fix{Coord: geo.Coordinate{Lat: lat, Lon: lon}, Accuracy: accuracy, At: time.Now()})
}

func (s *shell) submit(ctx context.Context) {
	resp, err := s.ctrl.Submit(ctx, s.form)
	fmt.Fprintln(s.out, session.Message(err))
	if err != nil {
		s.log.Debug().Err(err).Msg("submit failed")
		return
	}
	if resp.EventID != "" {
		fmt.Fprintln(s.out, "event:", resp.EventID)
	}
}

// exec runs one command line and reports whether the session is over.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; {
	case cmd == "quit" || cmd == "exit":
		return true
	case cmd == "pos" && len(args) >= 2:
		lat, err1 := strconv.ParseFloat(args[0], 64)
		lon, err2 := strconv.ParseFloat(args[1], 64)
		if err1 != nil || err2 != nil {
			fmt.Fprintln(s.out, "pos needs two numbers")
			return false
		}
		s.position(lat, lon, 10)
	case cmd == "heading" && len(args) == 1:
		deg, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fmt.Fprintln(s.out, "heading needs a number")
			return false
		}
		s.orientations.Publish(sensor.Orientation{Alpha: deg})
	case cmd == "nocompass":
		s.orientations.Publish(sensor.Orientation{Absent: true})
	case cmd == "scan" && len(args) == 1:
		s.scan(args[0])
	case cmd == "pin" && len(args) == 1:
		s.form.PIN = args[0]
		s.ctrl.SetPIN(args[0])
	case cmd == "status":
		printSnapshot(s.ctrl.Snapshot())
	case cmd == "submit":
		s.submit(ctx)
		return s.ctrl.Completed()
	default:
		fmt.Fprintln(s.out, commandHelp)
	}
	return false
}

// watchLoops are the timers that run for the life of a watched session.
type watchLoops struct {
	prober        *liveness.Prober
	probeInterval time.Duration
	board         bool
	timetable     timetable.Source
	loc           *time.Location
}

// watch keeps the session open until the attendance is marked, the input
// ends or ctx is cancelled.
func watch(ctx context.Context, sh *shell, loops watchLoops, lines <-chan string) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	// OnProbe ignores results unless the session is in laptop mode.
	if loops.prober != nil {
		spawn(func() { loops.prober.Run(ctx, loops.probeInterval, sh.ctrl.OnProbe) })
	}
	spawn(func() { refreshEvery(ctx, refreshInterval, sh.ctrl) })
	if loops.board && loops.timetable != nil {
		spawn(func() { timetable.Run(ctx, loops.timetable, loops.loc, timetable.DefaultRefresh, boardPrinter(sh.log)) })
	}

	fmt.Fprintln(sh.out, commandHelp)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || sh.exec(ctx, line) {
				return nil
			}
		}
	}
}

// refresher is the part of the controller the refresh ticker drives.
type refresher interface {
	Refresh()
}

// refreshEvery re-evaluates the gate so that the proximity grace window and
// the PIN rotation are observed without new sensor input.
func refreshEvery(ctx context.Context, d time.Duration, r refresher) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Refresh()
		}
	}
}

func boardPrinter(log zerolog.Logger) func(timetable.Day, error) {
	return func(d timetable.Day, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("timetable unavailable")
			return
		}
		printDay(d)
	}
}

// watchBoard prints the timetable on its refresh interval until ctx ends.
func watchBoard(ctx context.Context, src timetable.Source, loc *time.Location, log zerolog.Logger) {
	timetable.Run(ctx, src, loc, timetable.DefaultRefresh, boardPrinter(log))
}
