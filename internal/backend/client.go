package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// ErrUnavailable wraps transport failures, non-2xx statuses and undecodable
// bodies.
var ErrUnavailable = errors.New("backend unavailable")

// RejectedError is a business-rule rejection returned by the record-keeper.
// Reason is surfaced to the user verbatim.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "submission rejected: " + e.Reason
}

// Client calls the record-keeper endpoint.
type Client struct {
	URL  string
	HTTP *http.Client
}

// New creates a client with the given request timeout.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		URL:  url,
		HTTP: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches the roster entry for roll. deviceID lets the server report
// whether this device is already paired with the identity.
func (c *Client) Lookup(ctx context.Context, roll, deviceID string) (Profile, error) {
	var out LookupResponse
	err := c.post(ctx, lookupRequest{Action: ActionLookup, Type: "classroom", Roll: roll, DeviceID: deviceID}, &out)
	if err != nil {
		return Profile{}, err
	}
	return out.User, nil
}

// Notices returns the notice feed, oldest first.
func (c *Client) Notices(ctx context.Context) ([]Notice, error) {
	var out NoticesResponse
	if err := c.post(ctx, actionRequest{Action: ActionGetNotice}, &out); err != nil {
		return nil, err
	}
	return out.Notices, nil
}

func (c *Client) Timetable(ctx context.Context) (TimetableResponse, error) {
	var out TimetableResponse
	if err := c.post(ctx, actionRequest{Action: ActionGetTimetable}, &out); err != nil {
		return TimetableResponse{}, err
	}
	return out, nil
}

// Submit sends one submission. A rejection comes back as *RejectedError
// alongside the decoded response.
func (c *Client) Submit(ctx context.Context, s Submission) (SubmitResponse, error) {
	var out SubmitResponse
	if err := c.post(ctx, submitRequest{Action: ActionSubmit, Submission: s}, &out); err != nil {
		return SubmitResponse{}, err
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "rejected"
		}
		return out, &RejectedError{Reason: reason}
	}
	return out, nil
}

// Challenge asks the record-keeper for an account-level challenge token for
// the claimed identity on deviceID. A refusal comes back as *RejectedError.
func (c *Client) Challenge(ctx context.Context, roll, reg, deviceID string) (string, error) {
	var out ChallengeResponse
	err := c.post(ctx, challengeRequest{Action: ActionChallenge, Roll: roll, Reg: reg, DeviceID: deviceID}, &out)
	if err != nil {
		return "", err
	}
	if !out.Success || out.Token == "" {
		reason := out.Error
		if reason == "" {
			reason = "account challenge refused"
		}
		return "", &RejectedError{Reason: reason}
	}
	return out.Token, nil
}

func (c *Client) post(ctx context.Context, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	// Rejections may come with a 4xx status and a JSON body.
	if resp.StatusCode >= 300 {
		sr, ok := out.(*SubmitResponse)
		if ok && resp.StatusCode < 500 && json.Unmarshal(raw, sr) == nil && sr.Error != "" {
			return nil
		}
		return fmt.Errorf("%w: %s: %s", ErrUnavailable, resp.Status, bytes.TrimSpace(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
