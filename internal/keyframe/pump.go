// Package keyframe periodically requests IDR frames from video
// consumers so a recording started mid-stream begins with a decodable
// frame.
package keyframe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/recorder/internal/sfurouter"
)

// DefaultInterval is the fixed 1-2s cadence between IDR requests once a
// recording is running.
const DefaultInterval = 2 * time.Second

// Pump drives RequestKeyFrame on a set of video consumers: once
// immediately, then on a fixed interval until its context is canceled.
type Pump struct {
	consumers []sfurouter.Consumer
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Pump over consumers. Only consumers whose Kind is video
// are retained; audio consumers are silently ignored so callers can pass
// a recording's full consumer set without filtering first.
func New(consumers []sfurouter.Consumer, interval time.Duration, logger *zap.Logger) *Pump {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	video := make([]sfurouter.Consumer, 0, len(consumers))
	for _, c := range consumers {
		if c.Kind() == sfurouter.KindVideo {
			video = append(video, c)
		}
	}
	return &Pump{consumers: video, interval: interval, logger: logger}
}

// Run requests a keyframe from every video consumer immediately, then
// again every interval, until ctx is canceled. It never returns an
// error: a single consumer's failed request (e.g. its producer closed)
// is logged and does not stop the pump for the others.
func (p *Pump) Run(ctx context.Context) {
	p.requestAll(ctx)
	if len(p.consumers) == 0 {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.requestAll(ctx)
		}
	}
}

func (p *Pump) requestAll(ctx context.Context) {
	for _, c := range p.consumers {
		if err := c.RequestKeyFrame(ctx); err != nil {
			p.logger.Debug("keyframe request failed", zap.Error(err))
		}
	}
}
