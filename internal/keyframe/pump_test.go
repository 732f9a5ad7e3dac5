package keyframe

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/recorder/internal/sfurouter"
)

func TestRun_RequestsImmediatelyAndOnInterval(t *testing.T) {
	router := sfurouter.NewFake()
	videoProducer := sfurouter.NewFakeProducer("v1", sfurouter.CodecInfo{Kind: sfurouter.KindVideo, MimeName: "VP8", ClockRate: 90000}, sfurouter.CodecInfo{})
	audioProducer := sfurouter.NewFakeProducer("a1", sfurouter.CodecInfo{Kind: sfurouter.KindAudio, MimeName: "opus", ClockRate: 48000}, sfurouter.CodecInfo{})
	router.AddProducer(videoProducer)
	router.AddProducer(audioProducer)

	videoConsumer, err := router.Consume(context.Background(), nil, videoProducer)
	require.NoError(t, err)
	audioConsumer, err := router.Consume(context.Background(), nil, audioProducer)
	require.NoError(t, err)

	pump := New([]sfurouter.Consumer{videoConsumer, audioConsumer}, 20*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	pump.Run(ctx)

	// One immediate request plus at least two ticks; audio consumers must
	// never be asked for a keyframe.
	require.GreaterOrEqual(t, router.KeyframeRequests(), int64(3))
	audioPLIs := audioConsumer.(interface{ SentPLIs() []rtcp.Packet }).SentPLIs()
	require.Empty(t, audioPLIs)
}

func TestRun_NoVideoConsumersReturnsImmediately(t *testing.T) {
	pump := New(nil, 10*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		pump.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for an empty consumer set")
	}
}
