package location

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/trailride/navcore/internal/timeutil"
)

// Simulator replays recorded samples, one JSON object per line, at a
// fixed cadence. It stands in for a live receiver in dev mode and in the
// navsim tool.
type Simulator struct {
	samples  []Sample
	interval time.Duration
	clock    timeutil.Clock

	mu          sync.Mutex
	subscribers map[string]func(Sample)
	last        Sample
	hasLast     bool
}

// NewSimulator parses fixture data into a replayable sample sequence.
// Blank lines and lines starting with '#' are skipped.
func NewSimulator(fixtures []byte, interval time.Duration, clock timeutil.Clock) (*Simulator, error) {
	if interval <= 0 {
		interval = time.Second
	}
	var samples []Sample
	scan := bufio.NewScanner(bytes.NewReader(fixtures))
	for scan.Scan() {
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var s Sample
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("bad fixture line %q: %w", line, err)
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples in fixture data")
	}
	return &Simulator{
		samples:     samples,
		interval:    interval,
		clock:       clock,
		subscribers: make(map[string]func(Sample)),
	}, nil
}

// Samples returns the parsed fixture sequence.
func (p *Simulator) Samples() []Sample {
	out := make([]Sample, len(p.samples))
	copy(out, p.samples)
	return out
}

// RequestPermission always succeeds for the simulator.
func (p *Simulator) RequestPermission(ctx context.Context) error { return nil }

// LastKnownPosition returns the most recently replayed sample.
func (p *Simulator) LastKnownPosition() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// CurrentPosition returns the first fixture sample immediately, stamped
// with the current time.
func (p *Simulator) CurrentPosition(ctx context.Context) (Sample, error) {
	s := p.samples[0]
	s.TimestampMs = p.clock.Now().UnixMilli()
	return s, nil
}

// Subscribe registers fn for replayed samples.
func (p *Simulator) Subscribe(fn func(Sample)) (unsubscribe func()) {
	id := randomID()
	p.mu.Lock()
	p.subscribers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// Run replays the fixtures in order until exhausted or the context is
// cancelled. Each sample is restamped with the replay-time clock so
// downstream freshness checks behave as they would live.
func (p *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for _, s := range p.samples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.TimestampMs = p.clock.Now().UnixMilli()
			p.deliver(s)
		}
	}
	return nil
}

// Emit pushes a single sample to subscribers immediately, for tests and
// tools that drive the cadence themselves.
func (p *Simulator) Emit(s Sample) {
	p.deliver(s)
}

func (p *Simulator) deliver(s Sample) {
	p.mu.Lock()
	p.last = s
	p.hasLast = true
	subs := make([]func(Sample), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}
