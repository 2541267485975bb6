package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/pixelmatch/domain/match"
)

const captureStatsLogInterval = 5 * time.Second

// Service polls one region through a Grabber and exposes the latest capture
// alongside instrumentation data. Use NewService to construct an instance.
type Service interface {
	FrameSource
	Start()
	Stop()
	Stats() CaptureStats
}

type captureService struct {
	grabber      Grabber
	region       match.Region
	interval     time.Duration
	logger       *slog.Logger
	running      atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
	latest       atomic.Pointer[FrameSnapshot]
	captures     atomic.Uint64
	skipped      atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
}

// NewService returns a stopped service capturing region every interval.
// Frames held in snapshots are never recycled; consumers may keep them.
func NewService(logger *slog.Logger, g Grabber, region match.Region, interval time.Duration) Service {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &captureService{grabber: g, region: region, interval: interval, logger: logger}
}

func (s *captureService) LatestFrame() FrameSnapshot {
	snap := s.latest.Load()
	if snap == nil {
		return FrameSnapshot{}
	}
	return *snap
}

func (s *captureService) Running() bool { return s.running.Load() }

func (s *captureService) Stats() CaptureStats {
	captures := s.captures.Load()
	skipped := s.skipped.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	snapshot := s.LatestFrame()
	age := time.Duration(0)
	if !snapshot.CapturedAt.IsZero() {
		age = time.Since(snapshot.CapturedAt)
	}
	return CaptureStats{
		Captures:         captures,
		Skipped:          skipped,
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      snapshot.CapturedAt,
		LatestFrameAge:   age,
		Sequence:         snapshot.Sequence,
	}
}

func (s *captureService) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.done)
}

// Stop halts the loop and waits for the in-flight capture to finish.
func (s *captureService) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.done)
	s.wg.Wait()
}

func (s *captureService) loop(done <-chan struct{}) {
	defer s.wg.Done()
	logTicker := time.NewTicker(captureStatsLogInterval)
	defer logTicker.Stop()
	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		s.captureOnce()
		select {
		case <-done:
			return
		case <-logTicker.C:
			s.logStats()
		case <-tick.C:
		}
	}
}

func (s *captureService) captureOnce() {
	start := time.Now()
	img, err := s.grabber.Grab(s.region)
	if err != nil || img == nil {
		s.skipped.Add(1)
		if err != nil && s.logger != nil {
			s.logger.Error("capture region", "error", err)
		}
		return
	}
	elapsed := time.Since(start)
	s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
	s.captures.Add(1)
	seq := s.sequence.Add(1)
	s.latest.Store(&FrameSnapshot{Image: img, Region: s.region, CapturedAt: time.Now(), Sequence: seq})
}

func (s *captureService) logStats() {
	if s.logger == nil {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
	)
}
