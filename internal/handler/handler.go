// Package handler serves the record-keeper's HTTP surface: the single action
// endpoint used by the check-in client, health, and the instructor event
// listing.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"classcheck/internal/attendance"
	"classcheck/internal/auth"
	"classcheck/internal/backend"
	"classcheck/internal/metrics"
	"classcheck/internal/queue"
	"classcheck/internal/store"
)

// Recorder is the attendance business logic.
type Recorder interface {
	Lookup(ctx context.Context, roll, deviceID string) (backend.Profile, error)
	Notices(ctx context.Context) ([]backend.Notice, error)
	Timetable(ctx context.Context) (backend.TimetableResponse, error)
	Submit(ctx context.Context, sub backend.Submission) (attendance.Result, error)
	Challenge(ctx context.Context, roll, reg, deviceID string) error
}

// EventLister backs the instructor listing.
type EventLister interface {
	ListEvents(ctx context.Context, f attendance.EventFilter) ([]attendance.Event, error)
}

// Check is a named health probe.
type Check struct {
	Name string
	OK   func(ctx context.Context) bool
}

type Handler struct {
	recorder   Recorder
	events     EventLister
	queue      queue.Queue
	signer     *auth.Signer
	receiptTTL time.Duration
	accountTTL time.Duration
	cache      store.Cache
	metrics    *metrics.Metrics
	checks     []Check
	log        zerolog.Logger
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Recorder   Recorder
	Events     EventLister
	Queue      queue.Queue
	Signer     *auth.Signer
	ReceiptTTL time.Duration
	// AccountTTL bounds account challenge tokens. Defaults to 5 minutes.
	AccountTTL time.Duration
	Cache      store.Cache
	Metrics    *metrics.Metrics
	Checks     []Check
	Log        zerolog.Logger
}

func New(d Deps) *Handler {
	if d.Cache == nil {
		d.Cache = store.NewCache(0, 0)
	}
	if d.AccountTTL <= 0 {
		d.AccountTTL = 5 * time.Minute
	}
	return &Handler{
		recorder:   d.Recorder,
		events:     d.Events,
		queue:      d.Queue,
		signer:     d.Signer,
		receiptTTL: d.ReceiptTTL,
		accountTTL: d.AccountTTL,
		cache:      d.Cache,
		metrics:    d.Metrics,
		checks:     d.Checks,
		log:        d.Log,
	}
}

// Routes mounts every endpoint on r. limit guards the action endpoint.
func (h *Handler) Routes(r gin.IRouter, limit gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	if limit != nil {
		r.POST("/exec", limit, h.Exec)
	} else {
		r.POST("/exec", h.Exec)
	}
	v1 := r.Group("/v1", auth.RequireRole(h.signer, auth.RoleInstructor))
	v1.GET("/events", h.ListEvents)
}

func writeJSON(c *gin.Context, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", b)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	res := gin.H{}
	status := http.StatusOK
	for _, chk := range h.checks {
		ok := chk.OK(ctx)
		res[chk.Name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	res["status"] = "ok"
	if status != http.StatusOK {
		res["status"] = "degraded"
	}
	c.JSON(status, res)
}

// ---------- Action endpoint ----------

// Exec dispatches on the "action" field. Bodies are read raw because the
// browser client posts JSON as text/plain to avoid a CORS preflight.
func (h *Handler) Exec(c *gin.Context) {
	start := time.Now()
	raw, err := c.GetRawData()
	var req backend.Request
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"success": false, "error": "malformed request"})
		h.observe("invalid", c, start)
		return
	}

	switch req.Action {
	case backend.ActionLookup:
		h.lookup(c, req)
	case backend.ActionGetNotice:
		h.notices(c)
	case backend.ActionGetTimetable:
		h.timetable(c)
	case backend.ActionSubmit:
		h.submit(c, req.Submission)
	case backend.ActionChallenge:
		h.challenge(c, req.Submission)
	default:
		writeJSON(c, http.StatusBadRequest, gin.H{"success": false, "error": "unknown action"})
		req.Action = "unknown"
	}
	h.observe(req.Action, c, start)
}

func (h *Handler) observe(action string, c *gin.Context, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveRequest(action, c.Writer.Status(), time.Since(start))
	}
}

func lookupKey(roll, deviceID string) string {
	return "lookup:" + roll + "|" + deviceID
}

func (h *Handler) lookup(c *gin.Context, req backend.Request) {
	if req.Roll == "" {
		writeJSON(c, http.StatusOK, backend.LookupResponse{})
		return
	}
	key := lookupKey(req.Roll, req.DeviceID)
	if b, ok := h.cache.Get(key); ok {
		if h.metrics != nil {
			h.metrics.CacheHit()
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	if h.metrics != nil {
		h.metrics.CacheMiss()
	}

	p, err := h.recorder.Lookup(c.Request.Context(), req.Roll, req.DeviceID)
	if err != nil {
		h.log.Error().Err(err).Str("roll", req.Roll).Msg("lookup failed")
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	b, err := json.Marshal(backend.LookupResponse{User: p})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	h.cache.Set(key, b)
	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}

func (h *Handler) notices(c *gin.Context) {
	n, err := h.recorder.Notices(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("notices failed")
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "notices unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, backend.NoticesResponse{Notices: n})
}

func (h *Handler) timetable(c *gin.Context) {
	tt, err := h.recorder.Timetable(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("timetable failed")
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "timetable unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, tt)
}

// submit answers rejections with 200 and success=false so that the client
// shows the reason verbatim; infrastructure failures are 5xx.
func (h *Handler) submit(c *gin.Context, sub backend.Submission) {
	ctx := c.Request.Context()
	log := h.log.With().Str("roll", sub.Roll).Str("device_id", sub.DeviceID).Logger()

	res, err := h.recorder.Submit(ctx, sub)
	if err != nil {
		if attendance.IsRejection(err) {
			log.Info().Err(err).Msg("submission rejected")
			h.count(outcome(err))
			writeJSON(c, http.StatusOK, backend.SubmitResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Msg("submission failed")
		h.count("error")
		writeJSON(c, http.StatusInternalServerError, backend.SubmitResponse{Error: "Server error, try again"})
		return
	}

	evt := res.Event
	log = log.With().Str("event_id", evt.ID).Logger()
	if res.Duplicate {
		log.Info().Msg("duplicate submission inside dedup window")
		h.count("duplicate")
	} else {
		h.count("accepted")
		h.cache.Del(lookupKey(sub.Roll, sub.DeviceID))
		msg, err := queue.NewSubmitted(queue.Submitted{EventID: evt.ID, Roll: evt.Roll, DeviceID: evt.DeviceID, At: evt.When})
		if err == nil {
			err = h.queue.Publish(ctx, msg)
		}
		if err != nil {
			log.Warn().Err(err).Msg("queue publish failed")
		}
	}

	receipt, _, err := h.signer.IssueReceipt(evt.Roll, evt.DeviceID, evt.ID, h.receiptTTL)
	if err != nil {
		log.Warn().Err(err).Msg("receipt not issued")
	}
	writeJSON(c, http.StatusOK, backend.SubmitResponse{Success: true, EventID: evt.ID, Receipt: receipt})
}

// challenge signs an account token for a device without a platform
// authenticator once the claimed identity checks out.
func (h *Handler) challenge(c *gin.Context, sub backend.Submission) {
	log := h.log.With().Str("roll", sub.Roll).Str("device_id", sub.DeviceID).Logger()
	if err := h.recorder.Challenge(c.Request.Context(), sub.Roll, sub.Reg, sub.DeviceID); err != nil {
		if attendance.IsRejection(err) {
			log.Info().Err(err).Msg("account challenge refused")
			writeJSON(c, http.StatusOK, backend.ChallengeResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Msg("account challenge failed")
		writeJSON(c, http.StatusInternalServerError, backend.ChallengeResponse{Error: "Server error, try again"})
		return
	}
	tok, _, err := h.signer.IssueAccount(sub.Roll, sub.DeviceID, h.accountTTL)
	if err != nil {
		log.Error().Err(err).Msg("account token not issued")
		writeJSON(c, http.StatusInternalServerError, backend.ChallengeResponse{Error: "Server error, try again"})
		return
	}
	log.Info().Msg("account challenge issued")
	writeJSON(c, http.StatusOK, backend.ChallengeResponse{Success: true, Token: tok})
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Submission(outcome)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, attendance.ErrWrongPIN):
		return "wrong_pin"
	case errors.Is(err, attendance.ErrStaleToken):
		return "stale_token"
	case errors.Is(err, attendance.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, attendance.ErrDeviceMismatch), errors.Is(err, attendance.ErrDeviceInUse):
		return "device_mismatch"
	case errors.Is(err, attendance.ErrBiometricRequired):
		return "no_biometric"
	case errors.Is(err, attendance.ErrAccountToken):
		return "account_token"
	default:
		return "invalid"
	}
}

// ---------- Instructor listing ----------

func (h *Handler) ListEvents(c *gin.Context) {
	f := attendance.EventFilter{
		Roll:     c.Query("roll"),
		DeviceID: c.Query("device_id"),
		Status:   c.Query("status"),
		Limit:    50,
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		f.Since = t
	}
	events, err := h.events.ListEvents(c.Request.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("list events failed")
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if events == nil {
		events = []attendance.Event{}
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}
