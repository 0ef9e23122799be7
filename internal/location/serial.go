package location

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/trailride/navcore/internal/timeutil"
)

const knotsToMps = 0.514444

// hdopBaselineM converts an HDOP figure into an estimated horizontal
// accuracy in meters, assuming a ~5 m base error for consumer receivers.
const hdopBaselineM = 5.0

// SerialNMEA reads NMEA 0183 sentences from a GPS receiver on a serial
// port and fans decoded samples out to subscribers.
type SerialNMEA struct {
	port serial.Port

	mu          sync.Mutex
	subscribers map[string]func(Sample)
	last        Sample
	hasLast     bool
	lastHDOP    float64

	clock timeutil.Clock
}

// OpenSerialNMEA opens the GPS receiver at path. A missing or unopenable
// device is a packaging/wiring defect, so the error is returned loudly
// rather than degraded around.
func OpenSerialNMEA(path string, baud int, clock timeutil.Clock) (*SerialNMEA, error) {
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("location capability unavailable at %s: %w", path, err)
	}
	return &SerialNMEA{
		port:        port,
		subscribers: make(map[string]func(Sample)),
		clock:       clock,
	}, nil
}

// RequestPermission always succeeds for a directly attached receiver.
func (p *SerialNMEA) RequestPermission(ctx context.Context) error { return nil }

// LastKnownPosition returns the most recent decoded fix.
func (p *SerialNMEA) LastKnownPosition() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// CurrentPosition waits for the next decoded fix from the receiver.
func (p *SerialNMEA) CurrentPosition(ctx context.Context) (Sample, error) {
	ch := make(chan Sample, 1)
	unsubscribe := p.Subscribe(func(s Sample) {
		select {
		case ch <- s:
		default:
		}
	})
	defer unsubscribe()

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return Sample{}, fmt.Errorf("waiting for fix: %w", ctx.Err())
	}
}

// Subscribe registers fn for every subsequent sample.
func (p *SerialNMEA) Subscribe(fn func(Sample)) (unsubscribe func()) {
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

// randomID generates a random subscription ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Monitor reads sentences from the port until the context is cancelled,
// decoding RMC fixes and GGA quality updates. Unparseable lines are
// skipped; the stream is noisy by nature.
func (p *SerialNMEA) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(p.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return err
		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			p.handleSentence(line)
		}
	}
}

// Close releases the serial port.
func (p *SerialNMEA) Close() error {
	return p.port.Close()
}

func (p *SerialNMEA) handleSentence(line string) {
	sentence, ok := stripChecksum(line)
	if !ok {
		return
	}
	fields := strings.Split(sentence, ",")
	if len(fields) == 0 {
		return
	}

	switch {
	case strings.HasSuffix(fields[0], "GGA"):
		if len(fields) > 8 {
			if hdop, err := strconv.ParseFloat(fields[8], 64); err == nil {
				p.mu.Lock()
				p.lastHDOP = hdop
				p.mu.Unlock()
			}
		}
	case strings.HasSuffix(fields[0], "RMC"):
		sample, ok := p.parseRMC(fields)
		if !ok {
			return
		}
		p.mu.Lock()
		p.last = sample
		p.hasLast = true
		subs := make([]func(Sample), 0, len(p.subscribers))
		for _, fn := range p.subscribers {
			subs = append(subs, fn)
		}
		p.mu.Unlock()
		for _, fn := range subs {
			fn(sample)
		}
	}
}

// parseRMC decodes a recommended-minimum sentence:
// $GPRMC,time,status,lat,N/S,lon,E/W,speed-knots,course,date,...
func (p *SerialNMEA) parseRMC(fields []string) (Sample, bool) {
	if len(fields) < 9 || fields[2] != "A" {
		return Sample{}, false
	}

	lat, err := parseCoordinate(fields[3], fields[4])
	if err != nil {
		return Sample{}, false
	}
	lon, err := parseCoordinate(fields[5], fields[6])
	if err != nil {
		return Sample{}, false
	}

	speedKnots, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return Sample{}, false
	}
	// Course over ground may be empty when stationary.
	course := 0.0
	if fields[8] != "" {
		if course, err = strconv.ParseFloat(fields[8], 64); err != nil {
			return Sample{}, false
		}
	}

	p.mu.Lock()
	hdop := p.lastHDOP
	p.mu.Unlock()
	accuracy := hdopBaselineM
	if hdop > 0 {
		accuracy = hdop * hdopBaselineM
	}

	s := Sample{
		HeadingDeg:  course,
		SpeedMps:    speedKnots * knotsToMps,
		AccuracyM:   accuracy,
		TimestampMs: p.clock.Now().UnixMilli(),
	}
	s.Coordinate.Lat = lat
	s.Coordinate.Lon = lon
	if !s.Valid() {
		return Sample{}, false
	}
	return s, true
}

// parseCoordinate converts an NMEA ddmm.mmmm (or dddmm.mmmm) value plus
// hemisphere letter into signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	raw, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	degrees := float64(int(raw / 100))
	minutes := raw - degrees*100
	result := degrees + minutes/60

	switch hemisphere {
	case "N", "E":
	case "S", "W":
		result = -result
	default:
		return 0, fmt.Errorf("bad hemisphere %q", hemisphere)
	}
	return result, nil
}

// stripChecksum validates and removes the leading '$' and trailing
// '*hh' checksum from a sentence. Sentences without a checksum are
// accepted as-is; some receivers omit it.
func stripChecksum(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return "", false
	}
	body := line[1:]
	star := strings.LastIndex(body, "*")
	if star < 0 {
		return body, true
	}
	payload, sum := body[:star], body[star+1:]
	if len(sum) != 2 {
		return "", false
	}
	want, err := strconv.ParseUint(sum, 16, 8)
	if err != nil {
		return "", false
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != byte(want) {
		log.Printf("dropping NMEA sentence with bad checksum: %q", line)
		return "", false
	}
	return payload, true
}
