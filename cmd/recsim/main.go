// Command recsim is a development harness that drives the Recording
// Orchestrator against an in-memory sfurouter.Fake instead of a live
// SFU, so the full start/record/stop lifecycle can be exercised without
// a running signaling server. It replaces the platform's background
// upload worker for this repository's narrower scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/recorder/internal/orchestrator"
	"github.com/aura-webinar/recorder/internal/recording"
	"github.com/aura-webinar/recorder/internal/registry"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

func main() {
	mode := flag.String("mode", "participant", "recording mode: participant | mixed")
	video := flag.Int("video", 2, "number of simulated video producers")
	audio := flag.Int("audio", 1, "number of simulated audio producers")
	runFor := flag.Duration("duration", 8*time.Second, "how long to record before stopping")
	outputRoot := flag.String("out", "./files", "output root directory")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "ffmpeg binary path")
	ffprobePath := flag.String("ffprobe", "ffprobe", "ffprobe binary path")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	router := sfurouter.NewFake()
	for i := 0; i < *video; i++ {
		router.AddProducer(sfurouter.NewFakeProducer(
			fmt.Sprintf("video-%d", i),
			sfurouter.CodecInfo{Kind: sfurouter.KindVideo, PayloadType: 96, MimeName: "VP8", ClockRate: 90000},
			sfurouter.CodecInfo{},
		))
	}
	for i := 0; i < *audio; i++ {
		router.AddProducer(sfurouter.NewFakeProducer(
			fmt.Sprintf("audio-%d", i),
			sfurouter.CodecInfo{Kind: sfurouter.KindAudio, PayloadType: 111, MimeName: "opus", ClockRate: 48000, Channels: 2},
			sfurouter.CodecInfo{},
		))
	}

	cfg := orchestrator.Config{
		OutputRoot:            *outputRoot,
		MixedMinRuntime:       5 * time.Second,
		ParticipantMinRuntime: 0,
		KeyframeInterval:      2 * time.Second,
		GridWidth:             1280,
		GridHeight:            720,
		MaxVideoInputsMixed:   4,
		StaleThreshold:        2 * time.Hour,
		HealthCheckInterval:   30 * time.Second,
		FFmpegPath:            *ffmpegPath,
		FFprobePath:           *ffprobePath,
		ExitGrace:             300 * time.Millisecond,
		QuitWait:              30 * time.Second,
		StarveWait:            5 * time.Second,
		PortMin:               25000,
		PortMax:               26000,
		PortMaxAttempts:       50,
	}
	svc := orchestrator.NewService(cfg, registry.New(), logger)

	ctx := context.Background()

	var recID recording.ID
	switch *mode {
	case "mixed":
		r, startErr := svc.StartMixed(ctx, router, "sim-room", "sim-user", 0, 0)
		if startErr != nil {
			logger.Fatal("start mixed recording", zap.Error(startErr))
		}
		recID = r.ID
	default:
		r, startErr := svc.StartParticipant(ctx, router, "sim-room", "sim-user")
		if startErr != nil {
			logger.Fatal("start participant recording", zap.Error(startErr))
		}
		recID = r.ID
	}
	logger.Info("recording started", zap.String("recording_id", string(recID)), zap.String("mode", *mode))

	time.Sleep(*runFor)

	result, err := svc.Stop(ctx, recID)
	if err != nil {
		logger.Error("stop recording", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("recording stopped",
		zap.String("recording_id", string(recID)),
		zap.String("file_name", result.FileName),
		zap.Float64("duration_seconds", result.Duration),
		zap.Bool("file_exists", result.FileExists))
}
