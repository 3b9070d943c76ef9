// Command reporter plays a rider's phone: it drives a simulated position
// along a route and reports it to the API the way the rider app does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joloLG/joloRide/internal/auth"
	"github.com/joloLG/joloRide/internal/config"
	"github.com/joloLG/joloRide/internal/geolocation"
	"github.com/joloLG/joloRide/internal/logging"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/reporter"
)

func main() {
	_ = config.LoadDotEnv()

	var (
		apiURL   string
		riderID  string
		orderID  string
		token    string
		route    string
		speed    float64
		interval time.Duration
		every    time.Duration
		runFor   time.Duration
		level    string
	)
	flag.StringVar(&apiURL, "api", "http://localhost:8080", "joloRide API base URL")
	flag.StringVar(&riderID, "rider", "", "rider profile id")
	flag.StringVar(&orderID, "order", "", "order being carried, if any")
	flag.StringVar(&token, "token", os.Getenv("RIDER_TOKEN"), "bearer token; issued from JWT_SECRET when empty")
	flag.StringVar(&route, "route", "12.6667,123.9667;12.6767,123.9667", "waypoints as lat,lng;lat,lng;...")
	flag.Float64Var(&speed, "speed", 30, "simulated speed in km/h")
	flag.DurationVar(&interval, "interval", reporter.DefaultInterval, "fixed polling interval")
	flag.DurationVar(&every, "watch-every", 2*time.Second, "simulated watch cadence")
	flag.DurationVar(&runFor, "duration", 0, "stop after this long (0 runs until interrupted)")
	flag.StringVar(&level, "log-level", "info", "log level")
	flag.Parse()

	logger := logging.NewLogger(level)
	if riderID == "" {
		logger.Error("-rider is required")
		os.Exit(2)
	}
	waypoints, err := parseRoute(route)
	if err != nil {
		logger.Error("invalid -route", "error", err)
		os.Exit(2)
	}
	if token == "" {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			logger.Error("either -token or JWT_SECRET is required")
			os.Exit(2)
		}
		token, err = auth.New(secret, 12*time.Hour).Issue(models.Actor{ID: riderID, Role: models.RoleRider})
		if err != nil {
			logger.Error("issue token failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}

	sim := geolocation.NewSimulator(waypoints, speed)
	sim.Every = every
	rep := reporter.New(sim, reporter.NewHTTPSink(apiURL, token), riderID, logger)
	rep.Interval = interval
	rep.SetOrder(orderID)

	if err := rep.Start(ctx); err != nil {
		logger.Error("tracking could not start", "error", geolocation.Message(err))
		os.Exit(1)
	}
	<-ctx.Done()
	rep.Stop()

	if st := rep.State(); st.Location != nil {
		logger.Info("last reported position", "lat", st.Location.Lat, "lng", st.Location.Lng, "at", st.Location.Timestamp)
	}
}

func parseRoute(s string) ([]models.Coord, error) {
	var out []models.Coord
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lat, lng, ok := strings.Cut(part, ",")
		if !ok {
			return nil, fmt.Errorf("waypoint %q: want lat,lng", part)
		}
		la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		ln, err2 := strconv.ParseFloat(strings.TrimSpace(lng), 64)
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("waypoint %q: %w", part, err)
		}
		if la < -90 || la > 90 || ln < -180 || ln > 180 {
			return nil, fmt.Errorf("waypoint %q out of range", part)
		}
		out = append(out, models.Coord{Lat: la, Lng: ln})
	}
	if len(out) == 0 {
		return nil, errors.New("route has no waypoints")
	}
	return out, nil
}
