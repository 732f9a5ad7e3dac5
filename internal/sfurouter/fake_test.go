package sfurouter

import (
	"context"
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func TestFakeConsumer_RequestKeyFrameRecordsPLITargetingProducerSSRC(t *testing.T) {
	router := NewFake()
	producer := NewFakeProducer("v1", CodecInfo{Kind: KindVideo, MimeName: "VP8", ClockRate: 90000}, CodecInfo{})
	router.AddProducer(producer)

	consumer, err := router.Consume(context.Background(), nil, producer)
	require.NoError(t, err)
	fc, ok := consumer.(*fakeConsumer)
	require.True(t, ok)

	require.Empty(t, fc.SentPLIs())

	require.NoError(t, consumer.RequestKeyFrame(context.Background()))
	require.NoError(t, consumer.RequestKeyFrame(context.Background()))

	sent := fc.SentPLIs()
	require.Len(t, sent, 2)
	for _, pkt := range sent {
		pli, ok := pkt.(*rtcp.PictureLossIndication)
		require.True(t, ok)
		require.Equal(t, producer.SSRC(), pli.MediaSSRC)
	}
	require.EqualValues(t, 2, router.KeyframeRequests())
}

func TestFakeConsumer_RequestKeyFrameFailsAfterProducerClosed(t *testing.T) {
	router := NewFake()
	producer := NewFakeProducer("v1", CodecInfo{Kind: KindVideo, MimeName: "VP8", ClockRate: 90000}, CodecInfo{})
	router.AddProducer(producer)

	consumer, err := router.Consume(context.Background(), nil, producer)
	require.NoError(t, err)

	router.CloseProducer("v1")
	require.Error(t, consumer.RequestKeyFrame(context.Background()))
}
