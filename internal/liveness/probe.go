// Package liveness is the weak "on the local network" signal used when the
// device has no compass. Low round-trip latency is a proxy, not a location
// proof.
package liveness

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultURL       = "https://connectivitycheck.gstatic.com/generate_204"
	DefaultThreshold = 150 * time.Millisecond
	DefaultInterval  = 3 * time.Second
)

// Result is one probe measurement.
type Result struct {
	OK      bool
	Latency time.Duration
	Err     error
}

// Prober times a minimal request against a connectivity endpoint.
type Prober struct {
	url       string
	threshold time.Duration
	client    *http.Client
	now       func() time.Time
	log       zerolog.Logger
}

func NewProber(url string, threshold time.Duration, log zerolog.Logger) *Prober {
	if url == "" {
		url = DefaultURL
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Prober{
		url:       url,
		threshold: threshold,
		client:    &http.Client{Timeout: 5 * time.Second},
		now:       time.Now,
		log:       log,
	}
}

// Probe fires one request. Any transport failure yields OK=false.
func (p *Prober) Probe(ctx context.Context) Result {
	start := p.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Msg("latency probe failed")
		return Result{Err: err}
	}
	_ = resp.Body.Close()

	latency := p.now().Sub(start)
	return Result{OK: latency < p.threshold, Latency: latency}
}

// Run probes every interval until ctx ends, handing each result to fn.
// Intervals are fixed; a slow probe delays the next tick rather than
// overlapping it.
func (p *Prober) Run(ctx context.Context, interval time.Duration, fn func(Result)) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(p.Probe(ctx))
		}
	}
}
