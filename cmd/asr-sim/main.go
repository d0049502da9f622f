// Command asr-sim is a standalone stand-in for the external ASR service. It
// serves the same GET /get-asr-output contract with configurable latency,
// random transient failures, an exact-path permanent failure list, and a
// request rate limit, so the full HTTP client path can be exercised locally.
package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type simulator struct {
	minLatency    time.Duration
	maxLatency    time.Duration
	transientRate float64
	permanentFor  map[string]struct{}
	limiter       *rate.Limiter
	log           *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func (s *simulator) roll() (latency time.Duration, transient bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latency = s.minLatency
	if s.maxLatency > s.minLatency {
		latency += time.Duration(s.rng.Int63n(int64(s.maxLatency - s.minLatency)))
	}
	return latency, s.rng.Float64() < s.transientRate
}

type output struct {
	Path       string `json:"path"`
	Transcript string `json:"transcript"`
}

type simError struct {
	Error string `json:"error"`
}

func (s *simulator) getASROutput(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, simError{Error: "path query parameter is required"})
	}

	if !s.limiter.Allow() {
		return c.JSON(http.StatusTooManyRequests, simError{Error: "rate limit exceeded"})
	}

	// Simulated decode time.
	latency, transient := s.roll()
	select {
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	case <-time.After(latency):
	}

	if _, ok := s.permanentFor[path]; ok {
		s.log.Info("permanent failure", slog.String("path", path))
		return c.JSON(http.StatusUnprocessableEntity, simError{Error: "unreadable audio segment"})
	}

	if transient {
		s.log.Info("transient failure", slog.String("path", path))
		return c.JSON(http.StatusInternalServerError, simError{Error: "transcription backend overloaded"})
	}

	return c.JSON(http.StatusOK, output{
		Path:       path,
		Transcript: "Transcript for " + path,
	})
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	minLatencyMs := flag.Int("min-latency-ms", 100, "minimum simulated latency")
	maxLatencyMs := flag.Int("max-latency-ms", 200, "maximum simulated latency")
	transientRate := flag.Float64("transient-rate", 0.05, "probability of a transient 500")
	permanent := flag.String("permanent-for", "bad_audio_segment", "comma-separated paths that always fail with 422")
	rps := flag.Float64("rps", 50, "sustained requests per second before 429")
	burst := flag.Int("burst", 100, "request burst before 429")
	seed := flag.Int64("seed", 0, "random seed (0 means time-based)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("scope", "asr-sim"))

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	permanentFor := map[string]struct{}{}
	for _, p := range strings.Split(*permanent, ",") {
		if p = strings.TrimSpace(p); p != "" {
			permanentFor[p] = struct{}{}
		}
	}

	sim := &simulator{
		minLatency:    time.Duration(*minLatencyMs) * time.Millisecond,
		maxLatency:    time.Duration(*maxLatencyMs) * time.Millisecond,
		transientRate: *transientRate,
		permanentFor:  permanentFor,
		limiter:       rate.NewLimiter(rate.Limit(*rps), *burst),
		rng:           rand.New(rand.NewSource(*seed)),
		log:           log,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/get-asr-output", sim.getASROutput)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	log.Info("simulator listening",
		slog.String("addr", *addr),
		slog.Float64("transient_rate", *transientRate),
		slog.Int("permanent_paths", len(permanentFor)))
	if err := e.Start(*addr); err != nil && err != http.ErrServerClosed {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
