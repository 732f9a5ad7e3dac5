package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/recorder/internal/binder"
	"github.com/aura-webinar/recorder/internal/filtergraph"
	"github.com/aura-webinar/recorder/internal/keyframe"
	"github.com/aura-webinar/recorder/internal/ports"
	"github.com/aura-webinar/recorder/internal/recording"
	"github.com/aura-webinar/recorder/internal/sdpdoc"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

// StartMixed produces a single MP4 tiling up to filtergraph.MaxVideoInputs
// video producers and summing every audio producer.
func (s *Service) StartMixed(ctx context.Context, router sfurouter.Router, room, user string, width, height int) (*recording.Recording, error) {
	if !router.Ready() {
		return nil, ErrRouterUnready
	}
	if width <= 0 {
		width = s.cfg.GridWidth
	}
	if height <= 0 {
		height = s.cfg.GridHeight
	}

	allProducers := router.Producers()
	if len(allProducers) == 0 {
		return nil, ErrNoInputs
	}

	var videoProducers, audioProducers []sfurouter.Producer
	for _, p := range allProducers {
		if p.Kind() == sfurouter.KindVideo {
			videoProducers = append(videoProducers, p)
		} else {
			audioProducers = append(audioProducers, p)
		}
	}
	maxVideo := s.cfg.MaxVideoInputsMixed
	if maxVideo <= 0 || maxVideo > filtergraph.MaxVideoInputs {
		maxVideo = filtergraph.MaxVideoInputs
	}
	if len(videoProducers) > maxVideo {
		s.logger.Info("capping video inputs for mixed recording",
			zap.Int("available", len(videoProducers)), zap.Int("used", maxVideo))
		videoProducers = videoProducers[:maxVideo]
	}

	selected := append(append([]sfurouter.Producer{}, videoProducers...), audioProducers...)

	id := recording.NewID(time.Now().UnixNano())
	outputPath := filepath.Join(s.cfg.OutputRoot, fmt.Sprintf("mixed-%s.mp4", id))
	sdpDir := filepath.Join(s.cfg.OutputRoot, "sdp", string(id))
	if err := ensureOutputDir(filepath.Dir(outputPath)); err != nil {
		return nil, err
	}
	if err := ensureOutputDir(sdpDir); err != nil {
		return nil, err
	}

	r := recording.NewRecording(id, room, user, recording.ModeMixed, sdpDir)
	alloc := s.newAllocator()

	inputs := make([]recording.InputDescriptor, len(selected))
	group, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, producer := range selected {
		i, producer := i, producer
		group.Go(func() error {
			in, err := s.bindMixedInput(gctx, router, producer, alloc, sdpDir)
			if err != nil {
				if errors.Is(err, sfurouter.ErrCannotConsume) {
					s.logger.Warn("skipping producer: router cannot consume", zap.String("producer_id", producer.ID()))
					return nil
				}
				return err
			}
			mu.Lock()
			inputs[i] = *in
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		cleanupInputs(compactInputs(inputs))
		_ = os.RemoveAll(sdpDir)
		return nil, err
	}

	bound := compactInputs(inputs)
	if len(bound) == 0 {
		_ = os.RemoveAll(sdpDir)
		return nil, ErrNoInputs
	}
	r.Inputs = bound

	videoCount, audioCount := 0, 0
	for _, in := range bound {
		if in.Kind == "video" {
			videoCount++
		} else {
			audioCount++
		}
	}

	expr, videoLabel, audioLabel := filtergraph.Build(videoCount, audioCount, width, height)
	args := mixedMuxerArgs(bound, expr, videoLabel, audioLabel, outputPath)

	handle, err := s.muxerSup.Launch(ctx, args)
	if err != nil {
		cleanupInputs(bound)
		_ = os.RemoveAll(sdpDir)
		return nil, fmt.Errorf("orchestrator: spawn mixed muxer: %w", err)
	}
	r.Muxer = handle

	var consumers []sfurouter.Consumer
	for i := range r.Inputs {
		if err := r.Inputs[i].Input.Consumer.Resume(ctx); err != nil {
			s.logger.Warn("resume failed", zap.String("producer_id", r.Inputs[i].ProducerID), zap.Error(err))
		}
		consumers = append(consumers, r.Inputs[i].Input.Consumer)
	}

	r.AddOutput(recording.OutputFile{Path: outputPath, Kind: "mixed"})
	r.SetState(recording.StateRunning)
	s.registry.Insert(r)

	interval := s.cfg.KeyframeInterval
	if interval <= 0 {
		interval = keyframe.DefaultInterval
	}
	pump := keyframe.New(consumers, interval, s.logger)
	go pump.Run(pumpContext(r))

	return r, nil
}

func compactInputs(inputs []recording.InputDescriptor) []recording.InputDescriptor {
	out := make([]recording.InputDescriptor, 0, len(inputs))
	for _, in := range inputs {
		if in.Input != nil {
			out = append(out, in)
		}
	}
	return out
}

// bindMixedInput runs the binder and writes the per-input SDP file into
// sdpDir. Unlike the per-participant path, no muxer is spawned here: all
// bound inputs feed the single mixed muxer launched once every input is
// ready.
func (s *Service) bindMixedInput(ctx context.Context, router sfurouter.Router, producer sfurouter.Producer, alloc *ports.Allocator, sdpDir string) (*recording.InputDescriptor, error) {
	bound, err := binder.Bind(ctx, router, producer, alloc)
	if err != nil {
		return nil, err
	}

	kindName := kindString(producer.Kind())
	prefix := "a"
	if kindName == "video" {
		prefix = "v"
	}
	sdpPath := filepath.Join(sdpDir, fmt.Sprintf("%s-%s.sdp", prefix, producer.ID()))

	doc, err := sdpdoc.Synthesize(bound.Codec, bound.Port)
	if err != nil {
		bound.Close()
		return nil, fmt.Errorf("orchestrator: synthesize sdp for %s: %w", producer.ID(), err)
	}
	if err := os.WriteFile(sdpPath, doc, 0o644); err != nil {
		bound.Close()
		return nil, fmt.Errorf("%w: write sdp %s: %v", ErrOutputUnwritable, sdpPath, err)
	}

	return &recording.InputDescriptor{
		ProducerID: producer.ID(),
		Kind:       kindName,
		SDPPath:    sdpPath,
		Input:      bound,
	}, nil
}

// mixedMuxerArgs builds the ffmpeg argument vector for the mixed
// recording: one -i per bound input's SDP file, the filter_complex
// expression, explicit maps for the composed video/audio streams, and
// the output encoder settings.
func mixedMuxerArgs(inputs []recording.InputDescriptor, filterExpr, videoLabel, audioLabel, outputPath string) []string {
	args := []string{"-protocol_whitelist", "file,udp,rtp,crypto,data"}
	for _, in := range inputs {
		args = append(args, "-i", in.SDPPath)
	}
	if filterExpr != "" {
		args = append(args, "-filter_complex", filterExpr)
	}
	if videoLabel != "" {
		args = append(args, "-map", "["+videoLabel+"]")
	}
	if audioLabel != "" {
		args = append(args, "-map", "["+audioLabel+"]")
	}
	args = append(args,
		"-c:v", "libx264", "-profile:v", "baseline", "-tune", "zerolatency", "-preset", "ultrafast",
		"-pix_fmt", "yuv420p", "-g", fmt.Sprintf("%d", filtergraph.TargetFPS), "-keyint_min", fmt.Sprintf("%d", filtergraph.TargetFPS),
		"-sc_threshold", "0", "-bf", "0",
		"-c:a", "aac", "-b:a", "128k", "-ar", "48000", "-ac", "2",
		"-movflags", "+faststart+frag_keyframe+empty_moov",
		"-y", outputPath,
	)
	return args
}

// stopMixed signals the single mixed-recording muxer, closes every
// consumer and endpoint, removes the auxiliary SDP directory, and
// probes the output's duration.
func (s *Service) stopMixed(ctx context.Context, r *recording.Recording) (recording.StopResult, error) {
	waitMinRuntime(ctx, r, s.cfg.MixedMinRuntime)
	expected := r.Elapsed().Seconds()

	if r.Muxer != nil {
		starve := func() {
			for i := range r.Inputs {
				r.Inputs[i].Input.Close()
			}
		}
		if err := r.Muxer.Stop(ctx, starve); err != nil {
			s.logger.Warn("mixed muxer stop reported error", zap.String("recording_id", string(r.ID)), zap.Error(err))
		}
	}
	for i := range r.Inputs {
		r.Inputs[i].Input.Close()
	}

	_ = os.RemoveAll(r.Dir)

	outputPath := ""
	for _, o := range r.Outputs() {
		if o.Kind == "mixed" {
			outputPath = o.Path
		}
	}

	var duration float64
	fileExists := false
	if outputPath != "" {
		if info, err := os.Stat(outputPath); err == nil {
			fileExists = !info.IsDir()
		}
		d, err := s.prober.Duration(ctx, outputPath)
		if err != nil {
			s.logger.Warn("duration probe failed", zap.String("path", outputPath), zap.Error(err))
		} else {
			duration = d
		}
	}

	return recording.StopResult{
		FileName:         fileNameOf(r),
		Path:             outputPath,
		FileExists:       fileExists,
		Duration:         duration,
		ExpectedDuration: expected,
	}, nil
}
