package binder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/recorder/internal/ports"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

func TestBind_Success(t *testing.T) {
	router := sfurouter.NewFake()
	producer := sfurouter.NewFakeProducer("p1",
		sfurouter.CodecInfo{Kind: sfurouter.KindVideo, PayloadType: 96, MimeName: "VP8", ClockRate: 90000},
		sfurouter.CodecInfo{Kind: sfurouter.KindVideo, PayloadType: 101, MimeName: "VP8", ClockRate: 90000},
	)
	router.AddProducer(producer)
	alloc := ports.New(31000, 32000, 50)

	in, err := Bind(context.Background(), router, producer, alloc)
	require.NoError(t, err)
	defer in.Close()

	require.Equal(t, uint8(101), in.Codec.PayloadType, "codecInfo must come from the consumer side, not the producer's")
	require.NotZero(t, in.Port)
}

func TestBind_SkipWhenCannotConsume(t *testing.T) {
	router := sfurouter.NewFake()
	producer := sfurouter.NewFakeProducer("p1", sfurouter.CodecInfo{Kind: sfurouter.KindAudio, MimeName: "opus", ClockRate: 48000}, sfurouter.CodecInfo{})
	router.AddProducer(producer)
	router.DenyConsume("p1")
	alloc := ports.New(31000, 32000, 50)

	_, err := Bind(context.Background(), router, producer, alloc)
	require.ErrorIs(t, err, ErrCannotConsume)
}

func TestBind_PortExhaustionReturnsError(t *testing.T) {
	router := sfurouter.NewFake()
	producer := sfurouter.NewFakeProducer("p1", sfurouter.CodecInfo{Kind: sfurouter.KindVideo, MimeName: "VP8", ClockRate: 90000}, sfurouter.CodecInfo{})
	router.AddProducer(producer)

	// A range too narrow to ever yield a pair forces AllocatePair to fail,
	// exercising the teardown path without needing to fake a closed port.
	alloc := ports.New(1, 2, 3)

	_, err := Bind(context.Background(), router, producer, alloc)
	require.Error(t, err)
}
