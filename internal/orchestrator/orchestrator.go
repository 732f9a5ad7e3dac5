// Package orchestrator drives the per-recording lifecycle: binding
// producers, synthesizing SDP, spawning and supervising a muxer, and
// tearing everything down on stop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/recorder/internal/muxer"
	"github.com/aura-webinar/recorder/internal/ports"
	"github.com/aura-webinar/recorder/internal/probe"
	"github.com/aura-webinar/recorder/internal/recording"
	"github.com/aura-webinar/recorder/internal/registry"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

// Sentinel errors of the service. ErrTimeout is not returned by any
// operation: RunHealthSweep stops a stale recording through Stop and
// only logs a warning.
var (
	ErrRouterUnready    = errors.New("orchestrator: router not ready")
	ErrNoInputs         = errors.New("orchestrator: no usable producer inputs")
	ErrOutputUnwritable = errors.New("orchestrator: output directory not writable")
	ErrTimeout          = errors.New("orchestrator: recording exceeded stale threshold")
)

// Config bundles every knob the orchestrator exposes to its caller.
type Config struct {
	OutputRoot            string
	MixedMinRuntime       time.Duration
	ParticipantMinRuntime time.Duration
	KeyframeInterval      time.Duration
	GridWidth             int
	GridHeight            int
	MaxVideoInputsMixed   int
	StaleThreshold        time.Duration
	HealthCheckInterval   time.Duration

	FFmpegPath  string
	FFprobePath string
	ExitGrace   time.Duration
	QuitWait    time.Duration
	StarveWait  time.Duration

	PortMin         int
	PortMax         int
	PortMaxAttempts int
}

// Service owns the Registry and every dependency needed to start and
// stop recordings. It holds no per-recording state itself — that lives
// entirely in the recording.Recording values it creates and registers.
type Service struct {
	cfg      Config
	registry *registry.Registry
	muxerSup *muxer.Supervisor
	prober   *probe.Prober
	logger   *zap.Logger
}

// NewService wires a Service from cfg, with its own Port Allocator,
// Muxer Supervisor and duration Prober.
func NewService(cfg Config, reg *registry.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		registry: reg,
		muxerSup: muxer.New(cfg.FFmpegPath, cfg.ExitGrace, cfg.QuitWait, cfg.StarveWait, logger),
		prober:   probe.New(cfg.FFprobePath),
		logger:   logger,
	}
}

func (s *Service) newAllocator() *ports.Allocator {
	return ports.New(s.cfg.PortMin, s.cfg.PortMax, s.cfg.PortMaxAttempts)
}

// ensureOutputDir creates dir and verifies it is writable by test-writing
// a throwaway file.
func ensureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrOutputUnwritable, dir, err)
	}
	writeTest := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(writeTest, []byte{}, 0o644); err != nil {
		return fmt.Errorf("%w: write-test %s: %v", ErrOutputUnwritable, dir, err)
	}
	_ = os.Remove(writeTest)
	return nil
}

// StatusInfo is the read-only view the status control operation returns.
type StatusInfo struct {
	Active    bool
	Elapsed   time.Duration
	FileName  string
	NumInputs int
}

// Status reports a recording's current state without mutating it.
func (s *Service) Status(id recording.ID) (StatusInfo, error) {
	r, err := s.registry.Get(id)
	if err != nil {
		return StatusInfo{}, err
	}
	return StatusInfo{
		Active:    r.State() == recording.StateRunning || r.State() == recording.StateStarting,
		Elapsed:   r.Elapsed(),
		FileName:  fileNameOf(r),
		NumInputs: len(r.Inputs),
	}, nil
}

func fileNameOf(r *recording.Recording) string {
	if r.Mode == recording.ModeMixed {
		return fmt.Sprintf("mixed-%s.mp4", r.ID)
	}
	return fmt.Sprintf("per-%s", r.ID)
}

// RunHealthSweep force-stops any recording whose elapsed time exceeds
// the configured stale threshold, on a fixed interval, until ctx is
// canceled.
func (s *Service) RunHealthSweep(ctx context.Context) {
	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	threshold := s.cfg.StaleThreshold
	if threshold <= 0 {
		threshold = 2 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range s.registry.Stale(threshold) {
				s.logger.Warn("recording exceeded stale threshold, force stopping",
					zap.String("recording_id", string(r.ID)), zap.Duration("elapsed", r.Elapsed()))
				if _, err := s.Stop(ctx, r.ID); err != nil && !errors.Is(err, registry.ErrNotFound) {
					s.logger.Error("force stop failed", zap.String("recording_id", string(r.ID)), zap.Error(err))
				}
			}
		}
	}
}

// Stop ends a recording by id, running the full teardown for its mode.
// A second concurrent call observes the same outcome as the first.
func (s *Service) Stop(ctx context.Context, id recording.ID) (recording.StopResult, error) {
	r, err := s.registry.Get(id)
	if err != nil {
		return recording.StopResult{}, err
	}

	if !r.MarkStopping() {
		return r.StopDone()
	}

	var result recording.StopResult
	var stopErr error
	switch r.Mode {
	case recording.ModeMixed:
		result, stopErr = s.stopMixed(ctx, r)
	default:
		result, stopErr = s.stopParticipant(ctx, r)
	}

	s.registry.Delete(r.ID)
	r.FinishStop(result, stopErr)
	return result, stopErr
}

// waitMinRuntime blocks, if needed, until r has run for at least floor.
func waitMinRuntime(ctx context.Context, r *recording.Recording, floor time.Duration) {
	if floor <= 0 {
		return
	}
	remaining := floor - r.Elapsed()
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
