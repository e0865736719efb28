package nmea

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

// withChecksum appends a valid *hh checksum to a sentence body.
func withChecksum(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func TestParseRMC(t *testing.T) {
	p := NewParser()

	line := withChecksum("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W")
	sample, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	if sample == nil {
		t.Fatal("ParseLine() returned no sample for a valid RMC fix")
	}

	if math.Abs(sample.Lat-48.1173) > 1e-4 {
		t.Errorf("Lat = %v, want 48.1173", sample.Lat)
	}
	if math.Abs(sample.Lng-11.5167) > 1e-4 {
		t.Errorf("Lng = %v, want 11.5167", sample.Lng)
	}
	if math.Abs(sample.SpeedMPS-22.4*0.514444) > 1e-6 {
		t.Errorf("SpeedMPS = %v, want 22.4 knots converted", sample.SpeedMPS)
	}
	want := time.Date(2024, 3, 23, 12, 35, 19, 0, time.UTC)
	if !sample.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", sample.Time, want)
	}
	if sample.AccuracyMeters >= 0 {
		t.Errorf("AccuracyMeters = %v before any GGA, want unknown", sample.AccuracyMeters)
	}
}

func TestParseSouthWestHemispheres(t *testing.T) {
	p := NewParser()
	line := withChecksum("GPRMC,083559,A,3351.213,S,15112.557,W,000.0,360.0,010625,,")
	sample, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	if sample.Lat >= 0 || sample.Lng >= 0 {
		t.Errorf("coords = (%v, %v), want negative for S/W", sample.Lat, sample.Lng)
	}
}

func TestGGAUpdatesAccuracy(t *testing.T) {
	p := NewParser()

	gga := withChecksum("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	if sample, err := p.ParseLine(gga); err != nil || sample != nil {
		t.Fatalf("GGA parse = (%v, %v), want (nil, nil)", sample, err)
	}

	rmc := withChecksum("GPRMC,123520,A,4807.038,N,01131.000,E,022.4,084.4,230324,,")
	sample, err := p.ParseLine(rmc)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sample.AccuracyMeters-4.5) > 1e-9 {
		t.Errorf("AccuracyMeters = %v, want 4.5 (HDOP 0.9 x 5 m)", sample.AccuracyMeters)
	}
}

func TestGGANoFixResetsAccuracy(t *testing.T) {
	p := NewParser()
	p.ParseLine(withChecksum("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	p.ParseLine(withChecksum("GPGGA,123525,,,,,0,00,,,M,,M,,"))

	sample, err := p.ParseLine(withChecksum("GPRMC,123526,A,4807.038,N,01131.000,E,0.0,0.0,230324,,"))
	if err != nil {
		t.Fatal(err)
	}
	if sample.AccuracyMeters >= 0 {
		t.Errorf("AccuracyMeters = %v after fix loss, want unknown", sample.AccuracyMeters)
	}
}

func TestVoidFixSkipped(t *testing.T) {
	p := NewParser()
	sample, err := p.ParseLine(withChecksum("GPRMC,123519,V,,,,,,,230324,,"))
	if err != nil {
		t.Errorf("void fix error = %v, want nil (not malformed, just no fix)", err)
	}
	if sample != nil {
		t.Errorf("void fix produced sample %+v", sample)
	}
}

func TestChecksumRejection(t *testing.T) {
	p := NewParser()
	line := withChecksum("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,,")
	corrupted := strings.Replace(line, "4807", "4808", 1)
	if _, err := p.ParseLine(corrupted); err == nil {
		t.Error("corrupted sentence accepted")
	}
}

func TestSentenceWithoutChecksumAccepted(t *testing.T) {
	p := NewParser()
	sample, err := p.ParseLine("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,,")
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	if sample == nil {
		t.Fatal("checksum-less sentence rejected; simulators omit checksums")
	}
}

func TestAlternateTalkers(t *testing.T) {
	p := NewParser()
	sample, err := p.ParseLine(withChecksum("GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,,"))
	if err != nil || sample == nil {
		t.Errorf("GNRMC not handled: sample=%v err=%v", sample, err)
	}
}

func TestMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not nmea", "hello world"},
		{"short rmc", withChecksum("GPRMC,123519,A")},
		{"bad latitude", withChecksum("GPRMC,123519,A,notanumber,N,01131.000,E,0.0,0.0,230324,,")},
		{"bad hemisphere", withChecksum("GPRMC,123519,A,4807.038,X,01131.000,E,0.0,0.0,230324,,")},
		{"bad date", withChecksum("GPRMC,123519,A,4807.038,N,01131.000,E,0.0,0.0,23,,")},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.ParseLine(tt.line); err == nil {
				t.Errorf("ParseLine(%q) accepted malformed input", tt.line)
			}
		})
	}
}

func TestIgnoredSentences(t *testing.T) {
	p := NewParser()
	for _, body := range []string{
		"GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00",
		"GPVTG,054.7,T,034.4,M,005.5,N,010.2,K",
	} {
		sample, err := p.ParseLine(withChecksum(body))
		if err != nil || sample != nil {
			t.Errorf("sentence %q: sample=%v err=%v, want ignored", body, sample, err)
		}
	}
}

func TestEmptyLine(t *testing.T) {
	p := NewParser()
	if sample, err := p.ParseLine("   "); err != nil || sample != nil {
		t.Errorf("blank line: sample=%v err=%v, want ignored", sample, err)
	}
}
