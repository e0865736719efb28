// Command tripmon is the on-device trip monitoring daemon. It reads a GPS
// over serial (or replays a recorded NMEA log), feeds the trip engine,
// spools finalized trips locally, and drains the spool to the trips service
// whenever it is reachable.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/trip.report/internal/backend"
	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/monitoring"
	"github.com/banshee-data/trip.report/internal/nmea"
	"github.com/banshee-data/trip.report/internal/roads"
	"github.com/banshee-data/trip.report/internal/speedlimit"
	"github.com/banshee-data/trip.report/internal/trip"
	"github.com/banshee-data/trip.report/internal/version"
)

var (
	gpsPort    = flag.String("gps-port", "/dev/ttyUSB0", "Serial port of the GPS receiver")
	gpsBaud    = flag.Int("gps-baud", 9600, "GPS serial baud rate")
	imuPort    = flag.String("imu-port", "", "Serial port of the IMU (x,y,z CSV lines); empty disables")
	imuBaud    = flag.Int("imu-baud", 115200, "IMU serial baud rate")
	replayPath = flag.String("replay", "", "Replay an NMEA log file instead of opening the GPS port")
	backendURL = flag.String("backend", "", "Trips service base URL (e.g. https://trips.example.net/api/trips); empty spools only")
	spoolPath  = flag.String("spool", "trip_spool.db", "Path to the local trip spool database")
	tuningPath = flag.String("tuning", "", "Optional JSON tuning file")
	overpass   = flag.String("overpass", "", "Overpass API endpoint (default: public instance)")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("tripmon %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	tuning := config.EmptyTuning()
	if *tuningPath != "" {
		loaded, err := config.LoadTuning(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
		tuning = loaded
	}

	spool, err := backend.OpenSpool(*spoolPath)
	if err != nil {
		log.Fatalf("failed to open spool: %v", err)
	}
	defer spool.Close()

	querier := roads.NewOverpassClient(*overpass, tuning.GetQueryTimeout())
	limits := speedlimit.NewCache(speedlimit.NewResolver(querier, tuning), tuning, nil)

	session := trip.NewSession(limits, tuning, nil, func(c trip.Command) {
		monitoring.Logf("tripmon: presenter command: %s", c)
	})

	var flusher *backend.Flusher
	if *backendURL != "" {
		client := backend.NewClient(*backendURL, 30*time.Second)
		flusher = backend.NewFlusher(spool, client)
		flusher.Start()
		defer flusher.Stop()
	}

	gps, closeGPS, err := openGPS()
	if err != nil {
		log.Fatalf("failed to open GPS source: %v", err)
	}
	defer closeGPS()

	if *imuPort != "" {
		go readIMU(session)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runGPS(ctx, session, gps)

	<-ctx.Done()
	log.Printf("shutting down")

	summary, err := session.End()
	if err != nil {
		log.Printf("failed to end trip: %v", err)
	} else if summary != nil {
		if err := spool.Enqueue(summary); err != nil {
			log.Printf("failed to spool trip %s: %v", summary.TripID, err)
		} else {
			log.Printf("spooled trip %s, local score %.1f", summary.TripID, summary.SafetyScore)
		}
		if flusher != nil {
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := flusher.RunOnce(flushCtx); err != nil {
				log.Printf("final flush failed, trips stay spooled: %v", err)
			}
		}
	}
}

func openGPS() (io.Reader, func(), error) {
	if *replayPath != "" {
		f, err := os.Open(*replayPath)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}

	port, err := serial.Open(*gpsPort, &serial.Mode{BaudRate: *gpsBaud})
	if err != nil {
		return nil, nil, err
	}
	return port, func() { port.Close() }, nil
}

// runGPS feeds NMEA lines into the session. The trip starts automatically
// on the first accepted fix and ends at shutdown.
func runGPS(ctx context.Context, session *trip.Session, r io.Reader) {
	parser := nmea.NewParser()
	scanner := bufio.NewScanner(r)
	started := false

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		sample, err := parser.ParseLine(scanner.Text())
		if err != nil {
			monitoring.Logf("tripmon: dropping GPS line: %v", err)
			continue
		}
		if sample == nil {
			continue
		}

		session.OnLocation(*sample)

		if !started {
			id, err := session.Start()
			if err != nil {
				// ErrNoFix until the receiver settles; keep trying.
				continue
			}
			monitoring.Logf("tripmon: trip %s started", id)
			started = true
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("GPS read error: %v", err)
	}
}

// readIMU feeds accelerometer samples from a serial IMU emitting
// "x,y,z" CSV lines in m/s².
func readIMU(session *trip.Session) {
	port, err := serial.Open(*imuPort, &serial.Mode{BaudRate: *imuBaud})
	if err != nil {
		log.Printf("failed to open IMU port, inertial fusion disabled: %v", err)
		return
	}
	defer port.Close()

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		sample, err := parseIMULine(scanner.Text())
		if err != nil {
			monitoring.Logf("tripmon: dropping IMU line: %v", err)
			continue
		}
		session.OnAcceleration(sample)
	}
}

func parseIMULine(line string) (trip.AccelerationSample, error) {
	segments := strings.Split(strings.TrimSpace(line), ",")
	if len(segments) != 3 {
		return trip.AccelerationSample{}, fmt.Errorf("expected 3 fields, got %d", len(segments))
	}
	var vals [3]float64
	for i, seg := range segments {
		v, err := strconv.ParseFloat(strings.TrimSpace(seg), 64)
		if err != nil {
			return trip.AccelerationSample{}, err
		}
		vals[i] = v
	}
	return trip.AccelerationSample{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
