// Package session owns one check-in session: it folds sensor readings into
// the presence signal, reports state transitions to a renderer, and runs the
// submission sequence.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classcheck/internal/backend"
	"classcheck/internal/device"
	"classcheck/internal/gate"
	"classcheck/internal/geo"
	"classcheck/internal/heading"
	"classcheck/internal/history"
	"classcheck/internal/liveness"
	"classcheck/internal/pin"
	"classcheck/internal/profile"
	"classcheck/internal/proximity"
	"classcheck/internal/sensor"
)

// Phase is the state of the submit control.
type Phase int

const (
	Idle Phase = iota
	VerifyingIdentity
	CheckingRange
	Sending
	Done
)

func (p Phase) String() string {
	return [...]string{"idle", "verifying_identity", "checking_range", "sending", "done"}[p]
}

type compassState int

const (
	compassUnknown compassState = iota
	compassPresent
	compassAbsent
)

// Snapshot is everything a renderer needs after a transition.
type Snapshot struct {
	Signal     gate.Signal
	View       gate.View
	Gauge      float64
	Heading    int
	HasHeading bool
	Laptop     bool
	CanSubmit  bool
	Phase      Phase
}

// Renderer receives a Snapshot whenever the signal kind, the submit
// enablement or the submit phase changes.
type Renderer interface {
	Render(Snapshot)
}

type RendererFunc func(Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }

// Biometric proves the submitter's identity on this device.
type Biometric interface {
	Verify(ctx context.Context, id device.Identity) (device.Outcome, error)
}

// Submitter sends a submission to the record-keeper.
type Submitter interface {
	Submit(ctx context.Context, s backend.Submission) (backend.SubmitResponse, error)
}

// Config holds the room and policy constants.
type Config struct {
	Room          geo.Coordinate
	RoomName      string
	MaxDistance   float64
	TargetHeading float64
	Tolerance     float64
	TokenSalt     string
	Location      *time.Location
}

// Deps are the collaborators of a Controller. History and Profiles are
// optional.
type Deps struct {
	Proximity *proximity.Checker
	Biometric Biometric
	Locator   sensor.Locator
	Backend   Submitter
	History   *history.Log
	Profiles  *profile.Directory
	DeviceID  string
	Renderer  Renderer
	Log       zerolog.Logger
}

// Form is what the student typed.
type Form struct {
	Roll   string
	Name   string
	Reg    string
	Mobile string
	Email  string
	PIN    string
}

// Controller is the explicit session context. All state changes go through
// its update methods; none of them block on I/O except Submit.
type Controller struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu            sync.Mutex
	position      geo.Coordinate
	hasFix        bool
	fusion        *heading.Fusion
	compass       compassState
	floorVerified bool
	pinInput      string
	signal        gate.Signal
	canSubmit     bool
	phase         Phase
	debounce      gate.Debouncer
	lastEnabled   bool
	lastPhase     Phase

	renderMu sync.Mutex
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = gate.DefaultMaxDistance
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = heading.DefaultTolerance
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		fusion: heading.New(cfg.TargetHeading, cfg.Tolerance),
	}
}

// Attach feeds the controller from sensor streams. The returned function
// unsubscribes both.
func (c *Controller) Attach(positions sensor.Stream[sensor.Fix], orientations sensor.Stream[sensor.Orientation]) func() {
	pos := positions.Subscribe(c.OnPosition)
	orient := orientations.Subscribe(c.OnOrientation)
	return func() {
		pos.Unsubscribe()
		orient.Unsubscribe()
	}
}

// OnPosition records a position fix. Errors keep the previous fix.
func (c *Controller) OnPosition(f sensor.Fix) {
	if f.Err != nil {
		c.deps.Log.Warn().Err(f.Err).Msg("position unavailable")
		return
	}
	c.mu.Lock()
	c.position, c.hasFix = f.Coord, true
	c.mu.Unlock()
	c.Refresh()
}

// OnOrientation folds a compass reading in. An Absent reading switches the
// session to laptop mode, where the floor check passes until a latency
// probe says otherwise.
func (c *Controller) OnOrientation(o sensor.Orientation) {
	c.mu.Lock()
	if o.Absent {
		if c.compass != compassAbsent {
			c.deps.Log.Info().Msg("no compass; using latency probe for floor check")
			c.compass = compassAbsent
			c.floorVerified = true
		}
	} else {
		c.compass = compassPresent
		c.fusion.Ingest(o.Alpha)
		c.floorVerified = c.fusion.Verified()
	}
	c.mu.Unlock()
	c.Refresh()
}

// OnProbe applies a latency probe result. It only matters in laptop mode.
func (c *Controller) OnProbe(r liveness.Result) {
	c.mu.Lock()
	if c.compass != compassAbsent {
		c.mu.Unlock()
		return
	}
	c.floorVerified = r.OK
	c.mu.Unlock()
	c.Refresh()
}

// Scan handles an entry URL. It returns the URL with the vault key removed
// and whether the proximity credential is now valid.
func (c *Controller) Scan(rawURL string) (string, bool) {
	key, stripped := proximity.ExtractKey(rawURL)
	ok := c.deps.Proximity.Check(key, c.now())
	c.Refresh()
	return stripped, ok
}

// SetPIN records the PIN the student typed.
func (c *Controller) SetPIN(input string) {
	c.mu.Lock()
	c.pinInput = input
	c.mu.Unlock()
	c.Refresh()
}

// Refresh recomputes the signal from the current readings. Callers tick it
// periodically so that the proximity grace window and PIN rotation are
// observed without new sensor input.
func (c *Controller) Refresh() {
	c.mu.Lock()
	snap, changed := c.recompute()
	c.mu.Unlock()
	if changed {
		c.render(snap)
	}
}

// Snapshot returns the current state without rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluate()
}

// recompute must be called with mu held.
func (c *Controller) recompute() (Snapshot, bool) {
	snap := c.evaluate()
	return snap, c.observe(snap)
}

func (c *Controller) evaluate() Snapshot {
	now := c.now()
	max := c.cfg.MaxDistance
	pos := c.position
	if !c.hasFix {
		pos = geo.Coordinate{}
	}

	c.signal = gate.Evaluate(gate.Inputs{
		Position:      pos,
		Room:          c.cfg.Room,
		MaxDistance:   max,
		Scanned:       c.deps.Proximity.Check("", now),
		FloorVerified: c.floorVerified,
	})
	c.canSubmit = c.phase == Idle && gate.CanSubmit(c.signal, c.pinInput, now.In(c.cfg.Location))

	h, hasH := c.fusion.Heading()
	return Snapshot{
		Signal:     c.signal,
		View:       gate.ViewFor(c.signal, c.cfg.RoomName),
		Gauge:      gate.Gauge(c.signal.Distance, max),
		Heading:    h,
		HasHeading: hasH,
		Laptop:     c.compass == compassAbsent,
		CanSubmit:  c.canSubmit,
		Phase:      c.phase,
	}
}

// observe reports whether snap differs from the last rendered state.
func (c *Controller) observe(snap Snapshot) bool {
	changed := c.debounce.Observe(snap.Signal)
	if snap.CanSubmit != c.lastEnabled || snap.Phase != c.lastPhase {
		changed = true
	}
	c.lastEnabled, c.lastPhase = snap.CanSubmit, snap.Phase
	if changed {
		c.deps.Log.Debug().Stringer("signal", snap.Signal).Bool("can_submit", snap.CanSubmit).
			Stringer("phase", snap.Phase).Msg("presence transition")
	}
	return changed
}

func (c *Controller) render(s Snapshot) {
	if c.deps.Renderer == nil {
		return
	}
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	c.deps.Renderer.Render(s)
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	snap, changed := c.recompute()
	c.mu.Unlock()
	if changed {
		c.render(snap)
	}
}

// Submit runs the submission sequence once: biometric challenge, a fresh
// position fix, then a single request to the record-keeper. There is no
// retry. On failure the control is re-enabled; on success the session ends.
func (c *Controller) Submit(ctx context.Context, f Form) (backend.SubmitResponse, error) {
	c.mu.Lock()
	switch c.phase {
	case Done:
		c.mu.Unlock()
		return backend.SubmitResponse{}, ErrSessionComplete
	case Idle:
	default:
		c.mu.Unlock()
		return backend.SubmitResponse{}, ErrSubmitInFlight
	}
	c.pinInput = f.PIN
	if !c.evaluate().CanSubmit {
		c.mu.Unlock()
		return backend.SubmitResponse{}, ErrGateClosed
	}
	c.phase = VerifyingIdentity
	snap, _ := c.recompute()
	c.mu.Unlock()
	c.render(snap)

	log := c.deps.Log.With().Str("roll", f.Roll).Logger()

	resp, err := c.submit(ctx, f, log)
	if err != nil {
		log.Warn().Err(err).Msg("submission failed")
		c.setPhase(Idle)
		return resp, err
	}
	log.Info().Str("event_id", resp.EventID).Msg("attendance marked")
	c.setPhase(Done)
	return resp, nil
}

func (c *Controller) submit(ctx context.Context, f Form, log zerolog.Logger) (backend.SubmitResponse, error) {
	outcome, err := c.deps.Biometric.Verify(ctx, device.Identity{Roll: f.Roll, Reg: f.Reg})
	if err != nil {
		return backend.SubmitResponse{}, fmt.Errorf("biometric: %w", err)
	}
	log.Debug().Stringer("binding", outcome.Kind).Msg("identity proven")

	c.setPhase(CheckingRange)
	pos, err := c.deps.Locator.Current(ctx)
	if err != nil {
		return backend.SubmitResponse{}, fmt.Errorf("%w: %v", ErrLocationRequired, err)
	}

	c.setPhase(Sending)
	now := c.now().In(c.cfg.Location)
	resp, err := c.deps.Backend.Submit(ctx, backend.Submission{
		DynamicPIN:   f.PIN,
		Token:        pin.TimeToken(now, c.cfg.TokenSalt),
		Roll:         f.Roll,
		Name:         f.Name,
		Reg:          f.Reg,
		Mobile:       f.Mobile,
		Email:        f.Email,
		Lat:          pos.Lat,
		Lon:          pos.Lon,
		DeviceID:     c.deps.DeviceID,
		BioSignature: outcome.Marker,
	})
	if err != nil {
		return resp, err
	}

	if c.deps.History != nil {
		if _, herr := c.deps.History.Append(f.Name, f.Roll, c.cfg.RoomName, resp.EventID); herr != nil {
			log.Warn().Err(herr).Msg("history not saved")
		}
	}
	if c.deps.Profiles != nil {
		perr := c.deps.Profiles.Save(f.Roll, profile.Fields{Name: f.Name, Reg: f.Reg, Mobile: f.Mobile, Email: f.Email})
		if perr != nil {
			log.Warn().Err(perr).Msg("profile not cached")
		}
	}
	return resp, nil
}

// Busy reports whether a submission is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase != Idle && c.phase != Done
}

// Completed reports whether this session already submitted successfully.
func (c *Controller) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == Done
}
