// Package nmea parses the NMEA-0183 sentences a serial GPS emits into
// location samples. Only the two sentences the engine needs are handled:
// RMC for position, speed, and time, and GGA for fix quality.
package nmea

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trip.report/internal/trip"
)

// mpsPerKnot converts the RMC speed-over-ground field.
const mpsPerKnot = 0.514444

// hdopMeters scales HDOP into a rough horizontal accuracy estimate.
const hdopMeters = 5.0

// Parser is a stateful line parser. GGA sentences update the fix-quality
// estimate applied to subsequent RMC fixes.
type Parser struct {
	accuracyMeters float64
}

// NewParser returns a Parser with no fix-quality data yet; samples parsed
// before the first GGA carry unknown accuracy.
func NewParser() *Parser {
	return &Parser{accuracyMeters: -1}
}

// ParseLine consumes one NMEA sentence. It returns a sample for a valid RMC
// fix, nil for sentences that only update parser state or are not handled,
// and an error for malformed input.
func (p *Parser) ParseLine(line string) (*trip.LocationSample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "$") {
		return nil, fmt.Errorf("not an NMEA sentence: %q", line)
	}

	body, ok := stripChecksum(line[1:])
	if !ok {
		return nil, fmt.Errorf("checksum mismatch: %q", line)
	}

	fields := strings.Split(body, ",")
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty sentence: %q", line)
	}

	// Talker-agnostic: GPRMC, GNRMC, GLRMC all carry the same payload.
	typ := fields[0]
	if len(typ) == 5 {
		typ = typ[2:]
	}

	switch typ {
	case "RMC":
		return p.parseRMC(fields)
	case "GGA":
		p.parseGGA(fields)
		return nil, nil
	default:
		return nil, nil
	}
}

// stripChecksum validates and removes a trailing *hh checksum. Sentences
// without one are accepted as-is (some simulators omit it).
func stripChecksum(body string) (string, bool) {
	idx := strings.LastIndexByte(body, '*')
	if idx < 0 {
		return body, true
	}
	payload := body[:idx]
	want, err := strconv.ParseUint(body[idx+1:], 16, 8)
	if err != nil {
		return "", false
	}
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return payload, sum == byte(want)
}

// parseRMC handles: RMC,hhmmss.ss,status,lat,N/S,lon,E/W,sog_knots,cog,ddmmyy,...
func (p *Parser) parseRMC(fields []string) (*trip.LocationSample, error) {
	if len(fields) < 10 {
		return nil, fmt.Errorf("RMC sentence too short: %d fields", len(fields))
	}
	if fields[2] != "A" {
		// Void fix: the receiver has no position yet. Not an error.
		return nil, nil
	}

	lat, err := parseCoordinate(fields[3], fields[4])
	if err != nil {
		return nil, fmt.Errorf("RMC latitude: %w", err)
	}
	lng, err := parseCoordinate(fields[5], fields[6])
	if err != nil {
		return nil, fmt.Errorf("RMC longitude: %w", err)
	}

	speedMPS := -1.0
	if fields[7] != "" {
		knots, err := strconv.ParseFloat(fields[7], 64)
		if err != nil {
			return nil, fmt.Errorf("RMC speed: %w", err)
		}
		speedMPS = knots * mpsPerKnot
	}

	at, err := parseDateTime(fields[9], fields[1])
	if err != nil {
		return nil, fmt.Errorf("RMC time: %w", err)
	}

	return &trip.LocationSample{
		Lat:            lat,
		Lng:            lng,
		Time:           at,
		AccuracyMeters: p.accuracyMeters,
		SpeedMPS:       speedMPS,
	}, nil
}

// parseGGA handles: GGA,hhmmss,lat,N/S,lon,E/W,quality,numsats,hdop,...
func (p *Parser) parseGGA(fields []string) {
	if len(fields) < 9 {
		return
	}
	if fields[6] == "0" {
		// No fix: quality data is meaningless.
		p.accuracyMeters = -1
		return
	}
	hdop, err := strconv.ParseFloat(fields[8], 64)
	if err != nil || hdop <= 0 {
		p.accuracyMeters = -1
		return
	}
	p.accuracyMeters = hdop * hdopMeters
}

// parseCoordinate converts ddmm.mmmm / dddmm.mmmm plus hemisphere into
// decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" || hemisphere == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	raw, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	degrees := float64(int(raw / 100))
	minutes := raw - degrees*100
	dd := degrees + minutes/60

	switch hemisphere {
	case "N", "E":
		return dd, nil
	case "S", "W":
		return -dd, nil
	default:
		return 0, fmt.Errorf("bad hemisphere %q", hemisphere)
	}
}

// parseDateTime combines the ddmmyy and hhmmss.ss fields into a UTC time.
func parseDateTime(date, clock string) (time.Time, error) {
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}, fmt.Errorf("bad date/time fields %q %q", date, clock)
	}
	day, err1 := strconv.Atoi(date[0:2])
	month, err2 := strconv.Atoi(date[2:4])
	year, err3 := strconv.Atoi(date[4:6])
	hour, err4 := strconv.Atoi(clock[0:2])
	minute, err5 := strconv.Atoi(clock[2:4])
	second, err6 := strconv.ParseFloat(clock[4:], 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, err
		}
	}
	nanos := int((second - float64(int(second))) * 1e9)
	return time.Date(2000+year, time.Month(month), day, hour, minute, int(second), nanos, time.UTC), nil
}
