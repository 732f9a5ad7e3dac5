// Package muxer supervises the external ffmpeg-like process that reads
// the synthesized SDP inputs and writes the recording container.
package muxer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Stage-timing defaults for the graceful stop protocol. Config
// overrides these per deployment; Handle falls back to them when a zero
// value is supplied.
const (
	DefaultExitGrace  = 300 * time.Millisecond
	DefaultQuitWait   = 30 * time.Second
	DefaultStarveWait = 5 * time.Second
)

// Supervisor launches and supervises muxer subprocesses. It holds only
// the binary path and stage timings; each recording gets its own Handle.
type Supervisor struct {
	FFmpegPath string
	ExitGrace  time.Duration
	QuitWait   time.Duration
	StarveWait time.Duration
	Logger     *zap.Logger
}

// New creates a Supervisor. An empty ffmpegPath defaults to "ffmpeg" on
// $PATH; zero durations fall back to the package defaults.
func New(ffmpegPath string, exitGrace, quitWait, starveWait time.Duration, logger *zap.Logger) *Supervisor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if exitGrace <= 0 {
		exitGrace = DefaultExitGrace
	}
	if quitWait <= 0 {
		quitWait = DefaultQuitWait
	}
	if starveWait <= 0 {
		starveWait = DefaultStarveWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{FFmpegPath: ffmpegPath, ExitGrace: exitGrace, QuitWait: quitWait, StarveWait: starveWait, Logger: logger}
}

// Handle is a scoped, single-use process handle: one per recording's
// muxer, created by Launch and consumed by Stop. It carries no
// finalizers — callers own its lifetime explicitly.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger

	started  atomic.Bool // first "frame=" line observed
	errCount atomic.Int32

	stageTiming struct{ exitGrace, quitWait, starveWait time.Duration }

	exited  chan struct{}
	waitErr error
}

// Launch starts the muxer with args and begins scanning its stderr for
// diagnostic lines ("frame="/error detection). The returned Handle's
// Started channel-free accessor (Processing) flips true on the first
// "frame=" occurrence.
func (s *Supervisor) Launch(ctx context.Context, args []string) (*Handle, error) {
	cmd := exec.Command(s.FFmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("muxer: stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("muxer: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("muxer: start %s: %w", s.FFmpegPath, err)
	}

	h := &Handle{
		cmd:    cmd,
		stdin:  stdin,
		logger: s.Logger,
		exited: make(chan struct{}),
	}
	h.stageTiming.exitGrace = s.ExitGrace
	h.stageTiming.quitWait = s.QuitWait
	h.stageTiming.starveWait = s.StarveWait

	go h.scanStderr(stderr)
	go h.wait()

	return h, nil
}

func (h *Handle) wait() {
	h.waitErr = h.cmd.Wait()
	close(h.exited)
}

// scanStderr reads line-oriented diagnostic text from the muxer.
func (h *Handle) scanStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	// ffmpeg stderr lines (especially filter_complex banners) can exceed
	// bufio.Scanner's 64KiB default.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "frame="):
			if h.started.CompareAndSwap(false, true) {
				h.logger.Debug("muxer processing started", zap.String("line", line))
			}
		case strings.Contains(line, "error"), strings.Contains(line, "Invalid argument"), strings.Contains(line, "dropping frame"):
			n := h.errCount.Add(1)
			h.logger.Warn("muxer diagnostic", zap.String("line", line), zap.Int32("count", n))
		}
	}
}

// Processing reports whether the muxer has emitted at least one
// "frame=" diagnostic line.
func (h *Handle) Processing() bool { return h.started.Load() }

// ErrorCount returns the number of error-shaped diagnostic lines seen so
// far. The count is only logged; nothing in this repository reads it, and
// repeated errors do not move a recording to a failed state.
func (h *Handle) ErrorCount() int32 { return h.errCount.Load() }

// Exited reports whether the process has already terminated.
func (h *Handle) Exited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

// StopFunc is the third stage's resource-starving callback: close every
// consumer and endpoint feeding this muxer.
type StopFunc func()

// Stop runs the graceful stop protocol: a short grace window, then
// `q\n` on stdin, then starving the muxer of input by invoking starve,
// then SIGTERM. It returns once the process has exited, or the supplied
// context is done.
func (h *Handle) Stop(ctx context.Context, starve StopFunc) error {
	if h.Exited() {
		return h.waitResult()
	}

	// Stage 1: wait up to exitGrace in case it already exited.
	if h.awaitExit(ctx, h.stageTiming.exitGrace) {
		return h.waitResult()
	}

	// Stage 2: write "q\n", close stdin, wait up to quitWait.
	_, writeErr := io.WriteString(h.stdin, "q\n")
	closeErr := h.stdin.Close()
	if writeErr != nil {
		h.logger.Warn("muxer: write quit command failed", zap.Error(writeErr))
	}
	if closeErr != nil {
		h.logger.Warn("muxer: close stdin failed", zap.Error(closeErr))
	}
	if h.awaitExit(ctx, h.stageTiming.quitWait) {
		return h.waitResult()
	}

	// Stage 3: starve the muxer of input, wait up to starveWait.
	if starve != nil {
		starve()
	}
	if h.awaitExit(ctx, h.stageTiming.starveWait) {
		return h.waitResult()
	}

	// Stage 4: terminate.
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		h.logger.Warn("muxer: terminate failed", zap.Error(err))
	}
	select {
	case <-h.exited:
		return h.waitResult()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) awaitExit(ctx context.Context, window time.Duration) bool {
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-h.exited:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Handle) waitResult() error {
	<-h.exited
	return h.waitErr
}
