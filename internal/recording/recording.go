// Package recording defines the data model for an in-progress or
// completed recording.
package recording

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aura-webinar/recorder/internal/binder"
	"github.com/aura-webinar/recorder/internal/muxer"
)

// ID identifies one recording. It is derived from a monotonic time
// source rather than a random identifier: unlike connection ids minted
// with google/uuid in internal/control, recording ids must sort in
// creation order and never collide within a single process, which a
// counter seeded off time.Now().UnixNano() guarantees more cheaply than
// a UUID generator.
type ID string

var idSeq atomic.Uint64

// NewID mints an ID unique within this process, ordered by creation
// time: a nanosecond timestamp disambiguated by a monotonically
// increasing counter in case two recordings start within the same
// nanosecond.
func NewID(clockNanos int64) ID {
	seq := idSeq.Add(1)
	return ID(fmt.Sprintf("%d-%d", clockNanos, seq))
}

// Mode distinguishes the two recording shapes this package supports.
type Mode int

const (
	ModeParticipant Mode = iota
	ModeMixed
)

func (m Mode) String() string {
	if m == ModeMixed {
		return "mixed"
	}
	return "participant"
}

// InputDescriptor is one bound producer contributing to a recording:
// its SDP file path and, in per-participant mode, the dedicated muxer
// process reading that file alone.
type InputDescriptor struct {
	ProducerID string
	Kind       string // "audio" | "video"
	SDPPath    string
	OutputPath string
	Input      *binder.Input
	Muxer      *muxer.Handle // nil in mixed mode, where one muxer reads every input
}

// OutputFile describes one file a recording has produced, reported back
// to the control surface on stop.
type OutputFile struct {
	Path string
	Kind string // "video", "audio", "mixed", "metadata"
}

// StopResult is the caller-facing summary of a completed stop: the
// fields the control surface's stopRecording/stopMixedRecording
// responses carry. ExpectedDuration is the wall-clock elapsed time at
// stop and is only meaningful for mixed recordings, where it is
// compared against the probed Duration; it is left zero for
// per-participant stops.
type StopResult struct {
	FileName         string
	Path             string
	FileExists       bool
	Duration         float64
	ExpectedDuration float64
}

// State is the recording's lifecycle position, surfaced via
// recordingStateChanged events.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateProcessing
	StateErrored
)

// Recording is the mutable aggregate for a single recording. Its
// exported fields are filled in while the recording starts and are not
// changed afterwards; mu guards state, outputs and the stop outcome,
// which the status operation, the health sweep and concurrent Stop
// callers read.
type Recording struct {
	ID     ID
	Room   string
	User   string
	Mode   Mode
	Dir    string
	Inputs []InputDescriptor
	Muxer  *muxer.Handle // mixed mode only; participant mode uses Inputs[i].Muxer

	StartedAt time.Time

	mu         sync.RWMutex
	state      State
	outputs    []OutputFile
	stopOnce   sync.Once
	stopCh     chan struct{}
	stopResult StopResult
	stopErr    error
}

// NewRecording initializes a Recording in the Starting state.
func NewRecording(id ID, room, user string, mode Mode, dir string) *Recording {
	return &Recording{
		ID:        id,
		Room:      room,
		User:      user,
		Mode:      mode,
		Dir:       dir,
		StartedAt: now(),
		state:     StateStarting,
		stopCh:    make(chan struct{}),
	}
}

func (r *Recording) SetState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Recording) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Recording) AddOutput(o OutputFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, o)
}

func (r *Recording) Outputs() []OutputFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OutputFile, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// Elapsed returns the wall-clock time since the recording started.
func (r *Recording) Elapsed() time.Duration {
	return now().Sub(r.StartedAt)
}

// MarkStopping records that a stop has been requested exactly once,
// returning true only to the first caller. Subsequent callers should
// await StopDone instead of re-running stop logic.
func (r *Recording) MarkStopping() (first bool) {
	first = false
	r.stopOnce.Do(func() {
		first = true
		r.SetState(StateStopping)
	})
	return first
}

// FinishStop records the stop outcome and unblocks any caller waiting on
// StopDone.
func (r *Recording) FinishStop(result StopResult, err error) {
	r.mu.Lock()
	r.stopResult = result
	r.stopErr = err
	r.mu.Unlock()
	close(r.stopCh)
}

// StopDone blocks until FinishStop has been called, then returns the
// recorded outcome. Safe to call from multiple goroutines concurrently
// with MarkStopping: every caller receives the same result.
func (r *Recording) StopDone() (StopResult, error) {
	<-r.stopCh
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopResult, r.stopErr
}

// now is a seam so tests can be written without depending on wall-clock
// behavior if ever needed; production code always uses real time.
var now = time.Now
