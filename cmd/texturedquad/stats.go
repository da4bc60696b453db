package main

import (
	"time"

	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/texturedquad/frame"
)

// statsReporter logs the frame rate and scheduler counters once per interval.
type statsReporter struct {
	log      logrus.FieldLogger
	interval time.Duration
	now      func() time.Duration

	last   time.Duration
	frames int
}

func newStatsReporter(log logrus.FieldLogger, interval time.Duration) *statsReporter {
	return &statsReporter{
		log:      log,
		interval: interval,
		now:      hrtime.Now,
		last:     hrtime.Now(),
	}
}

// tick counts one DrawFrame call.
func (s *statsReporter) tick(stats frame.Stats) {
	s.frames++

	now := s.now()
	elapsed := now - s.last
	if elapsed < s.interval {
		return
	}

	s.log.WithFields(logrus.Fields{
		"fps":         float64(s.frames) / elapsed.Seconds(),
		"presented":   stats.FramesPresented,
		"skipped":     stats.FramesSkipped,
		"recreations": stats.Recreations,
	}).Info("frame stats")

	s.last = now
	s.frames = 0
}
