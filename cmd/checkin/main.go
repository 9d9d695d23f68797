// Command checkin is a terminal shell over the check-in session. Sensor
// readings come from flags, so a run is one synthetic replay of a student
// standing somewhere with the phone pointed somewhere. With -watch the
// session stays open: the latency probe, the presence refresh and the
// timetable run on their timers while readings and the submit arrive as
// commands on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"classcheck/internal/backend"
	"classcheck/internal/config"
	"classcheck/internal/device"
	"classcheck/internal/geo"
	"classcheck/internal/history"
	"classcheck/internal/liveness"
	"classcheck/internal/localstore"
	"classcheck/internal/logging"
	"classcheck/internal/pin"
	"classcheck/internal/profile"
	"classcheck/internal/proximity"
	"classcheck/internal/sensor"
	"classcheck/internal/session"
)

type options struct {
	configPath string

	roll, name, reg, mobile, email string
	pin                            string
	scan                           string

	lat, lon, accuracy float64
	alpha              float64
	noCompass          bool
	noHardware         bool
	yes                bool
	watch              bool

	showPIN     bool
	board       bool
	dismiss     bool
	showHistory bool
	toggleTheme bool
	canvas      string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&o.roll, "roll", "", "roll number; starts a check-in")
	flag.StringVar(&o.name, "name", "", "student name (defaults to the cached profile)")
	flag.StringVar(&o.reg, "reg", "", "registration number")
	flag.StringVar(&o.mobile, "mobile", "", "mobile number")
	flag.StringVar(&o.email, "email", "", "email")
	flag.StringVar(&o.pin, "pin", "", "PIN shown on the classroom screen")
	flag.StringVar(&o.scan, "scan", "", "entry URL read from the classroom QR code")
	flag.Float64Var(&o.lat, "lat", math.NaN(), "latitude of the position fix")
	flag.Float64Var(&o.lon, "lon", math.NaN(), "longitude of the position fix")
	flag.Float64Var(&o.accuracy, "accuracy", 10, "reported accuracy of the fix in metres")
	flag.Float64Var(&o.alpha, "alpha", math.NaN(), "compass heading in degrees")
	flag.BoolVar(&o.noCompass, "no-compass", false, "report orientation events without a heading (laptop)")
	flag.BoolVar(&o.noHardware, "no-authenticator", false, "act as a host without a platform authenticator (account challenge fallback)")
	flag.BoolVar(&o.yes, "yes", false, "approve biometric prompts without asking")
	flag.BoolVar(&o.watch, "watch", false, "keep the session open: probe, refresh and read commands from stdin")
	flag.BoolVar(&o.showPIN, "show-pin", false, "print the current classroom PIN and exit")
	flag.BoolVar(&o.board, "board", false, "print notices and today's timetable")
	flag.BoolVar(&o.dismiss, "dismiss", false, "dismiss the active notice")
	flag.BoolVar(&o.showHistory, "history", false, "print recent check-ins")
	flag.BoolVar(&o.toggleTheme, "toggle-theme", false, "flip the saved light/dark preference")
	flag.StringVar(&o.canvas, "canvas", "", "renderer digest for the device fingerprint (defaults to the host name)")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()
	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, o, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, o options, log zerolog.Logger) error {
	loc := cfg.Location()

	if o.showPIN {
		now := time.Now().In(loc)
		fmt.Printf("PIN %s  (rotates in %s)\n", pin.Generate(now), pin.Countdown(now))
		return nil
	}

	store, err := localstore.OpenSQLite(cfg.Client.StorePath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer store.Close()

	if o.toggleTheme {
		t, err := profile.ToggleTheme(store)
		if err != nil {
			return err
		}
		fmt.Println("theme:", t)
	}

	client := backend.New(cfg.Client.BackendURL, cfg.Client.RequestTimeout)
	hist := history.New(store, cfg.Client.HistoryLimit, loc)

	if o.board {
		showBoard(ctx, store, client, loc, o.dismiss, log)
	}
	if o.showHistory {
		entries, err := hist.Recent(history.DefaultDisplay)
		if err != nil {
			return err
		}
		printHistory(entries)
	}
	if o.roll == "" {
		if o.watch && o.board {
			watchBoard(ctx, client, loc, log)
		}
		return nil
	}

	deviceID := device.Fingerprint(hostTraits(o.canvas))
	log = log.With().Str("device_id", deviceID).Str("roll", o.roll).Logger()

	auth := device.NewSoftAuthenticator(store, "classcheck.local")
	auth.NoHardware = o.noHardware
	if !o.yes {
		auth.Approve = promptApprove
	}
	binder := device.NewBinder(auth, store, "ClassCheck",
		device.WithTimeout(cfg.Client.BiometricWait),
		device.WithFallback(device.NewAccountChallenge(client, deviceID)),
	)

	positions := sensor.NewFeed[sensor.Fix]()
	orientations := sensor.NewFeed[sensor.Orientation]()
	fix := sensor.NewLatestFix(positions)
	defer fix.Close()

	dir := profile.NewDirectory(store, client)
	ctrl := session.New(session.Config{
		Room:          geo.Coordinate{Lat: cfg.Room.Lat, Lon: cfg.Room.Lon},
		RoomName:      cfg.Room.Name,
		MaxDistance:   cfg.Room.MaxDistance,
		TargetHeading: cfg.Room.TargetHeading,
		Tolerance:     cfg.Room.HeadingTolerance,
		TokenSalt:     cfg.Security.TokenSalt,
		Location:      loc,
	}, session.Deps{
		Proximity: proximity.NewChecker(store, cfg.Security.VaultKey, cfg.Security.GraceWindow),
		Biometric: binder,
		Locator:   fix,
		Backend:   client,
		History:   hist,
		Profiles:  dir,
		DeviceID:  deviceID,
		Renderer:  session.RendererFunc(printSnapshot),
		Log:       log,
	})
	detach := ctrl.Attach(positions, orientations)
	defer detach()

	form := session.Form{Roll: o.roll, Name: o.name, Reg: o.reg, Mobile: o.mobile, Email: o.email, PIN: o.pin}
	res, err := dir.Resolve(ctx, o.roll, deviceID)
	if err != nil {
		log.Warn().Err(err).Msg("roster lookup failed; using cached profile")
	}
	fillForm(&form, res)
	if res.Remote != nil && res.Remote.Secured && res.Remote.IsNewDevice {
		fmt.Println("This roll number is locked to another device.")
	}

	sh := &shell{ctrl: ctrl, positions: positions, orientations: orientations, form: form, out: os.Stdout, log: log}
	if o.scan != "" {
		sh.scan(o.scan)
	}
	if !math.IsNaN(o.lat) && !math.IsNaN(o.lon) {
		sh.position(o.lat, o.lon, o.accuracy)
	}
	prober := liveness.NewProber(cfg.Client.ProbeURL, cfg.Client.ProbeThreshold, log)
	switch {
	case o.noCompass:
		orientations.Publish(sensor.Orientation{Absent: true})
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Client.RequestTimeout)
		ctrl.OnProbe(prober.Probe(probeCtx))
		cancel()
	case !math.IsNaN(o.alpha):
		orientations.Publish(sensor.Orientation{Alpha: o.alpha})
	}
	ctrl.SetPIN(form.PIN)

	if o.watch {
		return watch(ctx, sh, watchLoops{
			prober:        prober,
			probeInterval: cfg.Client.ProbeInterval,
			board:         o.board,
			timetable:     client,
			loc:           loc,
		}, stdinLines())
	}

	if !ctrl.Snapshot().CanSubmit {
		fmt.Println(session.Message(session.ErrGateClosed))
		return nil
	}
	sh.submit(ctx)
	return nil
}

// fillForm completes the fields the user left empty from the resolved
// profile.
func fillForm(f *session.Form, res profile.Result) {
	if f.Name == "" {
		f.Name = res.Fields.Name
	}
	if f.Reg == "" {
		f.Reg = res.Fields.Reg
	}
	if f.Mobile == "" {
		f.Mobile = res.Fields.Mobile
	}
	if f.Email == "" {
		f.Email = res.Fields.Email
	}
}

func hostTraits(canvas string) device.Traits {
	if canvas == "" {
		canvas, _ = os.Hostname()
	}
	return device.Traits{
		CanvasDigest: canvas,
		ScreenWidth:  80,
		ScreenHeight: 24,
		Cores:        runtime.NumCPU(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		ColorDepth:   24,
	}
}

// stdinLines is the single reader of standard input, shared by the command
// loop and the biometric prompt.
var stdinLines = sync.OnceValue(func() <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			ch <- strings.TrimSpace(sc.Text())
		}
	}()
	return ch
})

func promptApprove(ctx context.Context, action string) error {
	fmt.Printf("Biometric %s requested. Approve? [Y/n] ", action)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", device.ErrDeclined, ctx.Err())
	case a, ok := <-stdinLines():
		a = strings.ToLower(a)
		if !ok || a == "n" || a == "no" {
			return device.ErrDeclined
		}
		return nil
	}
}
