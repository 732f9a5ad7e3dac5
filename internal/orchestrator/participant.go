package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/recorder/internal/binder"
	"github.com/aura-webinar/recorder/internal/keyframe"
	"github.com/aura-webinar/recorder/internal/ports"
	"github.com/aura-webinar/recorder/internal/recording"
	"github.com/aura-webinar/recorder/internal/sdpdoc"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

// StartParticipant produces one independent file per producer currently
// in the room. Producers the router cannot consume under the recorder's
// capability set are skipped with a warning, not a failure; if every
// producer is skipped the start fails with ErrNoInputs. Any other bind,
// SDP or muxer-spawn error for one producer fails the whole start.
func (s *Service) StartParticipant(ctx context.Context, router sfurouter.Router, room, user string) (*recording.Recording, error) {
	if !router.Ready() {
		return nil, ErrRouterUnready
	}
	producers := router.Producers()
	if len(producers) == 0 {
		return nil, ErrNoInputs
	}

	id := recording.NewID(time.Now().UnixNano())
	dir := filepath.Join(s.cfg.OutputRoot, "per", room, string(id))
	if err := ensureOutputDir(dir); err != nil {
		return nil, err
	}

	r := recording.NewRecording(id, room, user, recording.ModeParticipant, dir)
	alloc := s.newAllocator()

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	for _, producer := range producers {
		producer := producer
		group.Go(func() error {
			input, err := s.bindParticipantInput(gctx, router, producer, alloc, dir)
			if err != nil {
				if errors.Is(err, sfurouter.ErrCannotConsume) {
					s.logger.Warn("skipping producer: router cannot consume",
						zap.String("producer_id", producer.ID()))
					return nil
				}
				return err
			}
			mu.Lock()
			r.Inputs = append(r.Inputs, *input)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		cleanupInputs(r.Inputs)
		return nil, err
	}
	if len(r.Inputs) == 0 {
		cleanupInputs(r.Inputs)
		return nil, ErrNoInputs
	}

	// Resume consumers and start the keyframe pump only after every
	// muxer has been spawned.
	var consumers []sfurouter.Consumer
	for i := range r.Inputs {
		if err := r.Inputs[i].Input.Consumer.Resume(ctx); err != nil {
			s.logger.Warn("resume failed", zap.String("producer_id", r.Inputs[i].ProducerID), zap.Error(err))
		}
		consumers = append(consumers, r.Inputs[i].Input.Consumer)
	}

	r.SetState(recording.StateRunning)
	s.registry.Insert(r)

	pump := keyframe.New(consumers, s.cfg.KeyframeInterval, s.logger)
	go pump.Run(pumpContext(r))

	return r, nil
}

// bindParticipantInput runs the binder, writes the SDP, and spawns a
// dedicated muxer for one producer.
func (s *Service) bindParticipantInput(ctx context.Context, router sfurouter.Router, producer sfurouter.Producer, alloc *ports.Allocator, dir string) (*recording.InputDescriptor, error) {
	bound, err := binder.Bind(ctx, router, producer, alloc)
	if err != nil {
		return nil, err
	}

	kindName := kindString(producer.Kind())
	base := fmt.Sprintf("%s-%s-%s", kindName, producer.PeerID(), producer.ID())
	sdpPath := filepath.Join(dir, base+".sdp")
	outputPath := filepath.Join(dir, base+".webm")

	doc, err := sdpdoc.Synthesize(bound.Codec, bound.Port)
	if err != nil {
		bound.Close()
		return nil, fmt.Errorf("orchestrator: synthesize sdp for %s: %w", producer.ID(), err)
	}
	if err := os.WriteFile(sdpPath, doc, 0o644); err != nil {
		bound.Close()
		return nil, fmt.Errorf("%w: write sdp %s: %v", ErrOutputUnwritable, sdpPath, err)
	}

	handle, err := s.muxerSup.Launch(ctx, participantMuxerArgs(sdpPath, kindName, outputPath))
	if err != nil {
		bound.Close()
		return nil, fmt.Errorf("orchestrator: spawn muxer for %s: %w", producer.ID(), err)
	}

	return &recording.InputDescriptor{
		ProducerID: producer.ID(),
		Kind:       kindName,
		SDPPath:    sdpPath,
		OutputPath: outputPath,
		Input:      bound,
		Muxer:      handle,
	}, nil
}

// participantMuxerArgs builds the ffmpeg argument vector for one
// per-participant input.
func participantMuxerArgs(sdpPath, kind, outputPath string) []string {
	args := []string{
		"-protocol_whitelist", "file,udp,rtp,crypto,data",
		"-i", sdpPath,
	}
	if kind == "video" {
		args = append(args,
			"-c:v", "libvpx", "-b:v", "2M", "-pix_fmt", "yuv420p", "-r", "30",
		)
	} else {
		args = append(args,
			"-c:a", "libopus", "-b:a", "128k",
		)
	}
	args = append(args, "-y", outputPath)
	return args
}

func kindString(k sfurouter.Kind) string {
	if k == sfurouter.KindVideo {
		return "video"
	}
	return "audio"
}

// cleanupInputs tears down every already-bound input after a start that
// failed partway through.
func cleanupInputs(inputs []recording.InputDescriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := range inputs {
		in := &inputs[i]
		if in.Muxer != nil {
			_ = in.Muxer.Stop(ctx, func() { in.Input.Close() })
		}
		in.Input.Close()
	}
}

// pumpContext derives a context tied to the recording's own stop outcome,
// independent of the caller's request context. It is canceled once
// FinishStop has run, after the registry entry is deleted; the keyframe
// pump is not canceled when stop begins and keeps running while the muxer
// and inputs are torn down.
func pumpContext(r *recording.Recording) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = r.StopDone()
		cancel()
	}()
	return ctx
}

// stopParticipant signals every per-input muxer, unconditionally closes
// every consumer and endpoint regardless of which stop stage the muxer
// exited at, writes metadata.json, and reports the outcome.
func (s *Service) stopParticipant(ctx context.Context, r *recording.Recording) (recording.StopResult, error) {
	waitMinRuntime(ctx, r, s.cfg.ParticipantMinRuntime)

	type stopResult struct {
		path string
		kind string
	}
	results := make([]stopResult, 0, len(r.Inputs))

	for i := range r.Inputs {
		in := &r.Inputs[i]
		if in.Muxer != nil {
			if err := in.Muxer.Stop(ctx, func() { in.Input.Close() }); err != nil {
				s.logger.Warn("muxer stop reported error", zap.String("producer_id", in.ProducerID), zap.Error(err))
			}
		}
		in.Input.Close()
		results = append(results, stopResult{path: in.OutputPath, kind: in.Kind})
		r.AddOutput(recording.OutputFile{Path: in.OutputPath, Kind: in.Kind})
	}

	type fileMeta struct {
		Path     string  `json:"path"`
		Kind     string  `json:"kind"`
		Duration float64 `json:"duration_seconds"`
	}
	meta := struct {
		RecordingID string     `json:"recording_id"`
		Room        string     `json:"room"`
		StartedAt   time.Time  `json:"started_at"`
		EndedAt     time.Time  `json:"ended_at"`
		Duration    float64    `json:"duration_seconds"`
		Files       []fileMeta `json:"files"`
	}{
		RecordingID: string(r.ID),
		Room:        r.Room,
		StartedAt:   r.StartedAt,
		EndedAt:     time.Now(),
	}
	meta.Duration = meta.EndedAt.Sub(meta.StartedAt).Seconds()

	for _, res := range results {
		d, err := s.prober.Duration(ctx, res.path)
		if err != nil {
			s.logger.Warn("duration probe failed", zap.String("path", res.path), zap.Error(err))
		}
		meta.Files = append(meta.Files, fileMeta{Path: res.path, Kind: res.kind, Duration: d})
	}

	metadataPath := filepath.Join(r.Dir, "metadata.json")
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return recording.StopResult{}, fmt.Errorf("orchestrator: encode metadata for %s: %w", r.ID, err)
	}
	if err := os.WriteFile(metadataPath, encoded, 0o644); err != nil {
		return recording.StopResult{}, fmt.Errorf("orchestrator: write metadata for %s: %w", r.ID, err)
	}
	r.AddOutput(recording.OutputFile{Path: metadataPath, Kind: "metadata"})

	fileExists := false
	if info, statErr := os.Stat(r.Dir); statErr == nil {
		fileExists = info.IsDir()
	}

	return recording.StopResult{
		FileName:   fileNameOf(r),
		Path:       r.Dir,
		FileExists: fileExists,
		Duration:   meta.Duration,
	}, nil
}
