package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h func(req Request) (int, any)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(raw, &req))
		status, body := h(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, time.Second)
}

func TestLookup(t *testing.T) {
	c := newServer(t, func(req Request) (int, any) {
		assert.Equal(t, ActionLookup, req.Action)
		assert.Equal(t, "classroom", req.Type)
		assert.Equal(t, "21CS01", req.Roll)
		assert.Equal(t, "HW-V3-ABC", req.DeviceID)
		return http.StatusOK, LookupResponse{User: Profile{Found: true, Name: "Asha", Reg: "R1"}}
	})

	p, err := c.Lookup(context.Background(), "21CS01", "HW-V3-ABC")
	require.NoError(t, err)
	assert.True(t, p.Found)
	assert.Equal(t, "Asha", p.Name)
}

func TestNoticesAndTimetable(t *testing.T) {
	c := newServer(t, func(req Request) (int, any) {
		switch req.Action {
		case ActionGetNotice:
			return http.StatusOK, NoticesResponse{Notices: []Notice{{Msg: "old"}, {Msg: "new"}}}
		case ActionGetTimetable:
			return http.StatusOK, TimetableResponse{
				Timetable: []Class{{Day: "MONDAY", StartRaw: "09:00", EndRaw: "10:00", Subject: "Maths"}},
				Holidays:  map[string]Holiday{"2026-01-26": {Name: "Republic Day", Type: "national"}},
			}
		}
		return http.StatusBadRequest, map[string]string{"error": "unknown"}
	})

	notices, err := c.Notices(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "new", notices[1].Msg)

	tt, err := c.Timetable(context.Background())
	require.NoError(t, err)
	require.Len(t, tt.Timetable, 1)
	assert.Equal(t, "Republic Day", tt.Holidays["2026-01-26"].Name)
}

func TestSubmit(t *testing.T) {
	sub := Submission{DynamicPIN: "1234", Token: "MTIzNEdF", Roll: "21CS01", Lat: 26.87, Lon: 84.51, DeviceID: "HW-V3-1", BioSignature: "VERIFIED_HW"}

	t.Run("accepted", func(t *testing.T) {
		c := newServer(t, func(req Request) (int, any) {
			assert.Equal(t, ActionSubmit, req.Action)
			assert.Equal(t, sub, req.Submission)
			return http.StatusOK, SubmitResponse{Success: true, EventID: "e1", Receipt: "jwt"}
		})
		res, err := c.Submit(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, "e1", res.EventID)
	})

	t.Run("rejected verbatim", func(t *testing.T) {
		c := newServer(t, func(Request) (int, any) {
			return http.StatusOK, SubmitResponse{Error: "Wrong PIN"}
		})
		_, err := c.Submit(context.Background(), sub)
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "Wrong PIN", rej.Reason)
	})

	t.Run("rejected with status", func(t *testing.T) {
		c := newServer(t, func(Request) (int, any) {
			return http.StatusForbidden, SubmitResponse{Error: "device mismatch"}
		})
		_, err := c.Submit(context.Background(), sub)
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "device mismatch", rej.Reason)
	})

	t.Run("server error", func(t *testing.T) {
		c := newServer(t, func(Request) (int, any) {
			return http.StatusInternalServerError, map[string]string{"oops": "x"}
		})
		_, err := c.Submit(context.Background(), sub)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestChallenge(t *testing.T) {
	c := newServer(t, func(req Request) (int, any) {
		assert.Equal(t, ActionChallenge, req.Action)
		assert.Equal(t, "R-1", req.Reg)
		assert.Equal(t, "HW-V3-ABC", req.DeviceID)
		if req.Roll == "21CS01" {
			return http.StatusOK, ChallengeResponse{Success: true, Token: "tok"}
		}
		return http.StatusOK, ChallengeResponse{Error: "Account not found"}
	})

	tok, err := c.Challenge(context.Background(), "21CS01", "R-1", "HW-V3-ABC")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	_, err = c.Challenge(context.Background(), "21CS09", "R-1", "HW-V3-ABC")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Account not found", rejected.Reason)
}

func TestUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1/exec", 200*time.Millisecond)
	_, err := c.Notices(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}
