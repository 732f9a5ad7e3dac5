package sdpdoc

import (
	"strings"
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/recorder/internal/sfurouter"
)

func TestSynthesize_RtpmapUsesConsumerPayloadType(t *testing.T) {
	// The document must reflect the consumer's negotiated payload type,
	// not the producer's, since the router may renumber it.
	consumerCodec := sfurouter.CodecInfo{
		Kind:        sfurouter.KindVideo,
		PayloadType: 96,
		MimeName:    "VP8",
		ClockRate:   90000,
	}

	raw, err := Synthesize(consumerCodec, 30000)
	require.NoError(t, err)

	var parsed sdp.SessionDescription
	require.NoError(t, parsed.Unmarshal(raw))
	require.Len(t, parsed.MediaDescriptions, 1)

	md := parsed.MediaDescriptions[0]
	require.Equal(t, "video", md.MediaName.Media)
	require.Equal(t, 30000, md.MediaName.Port.Value)
	require.Equal(t, []string{"96"}, md.MediaName.Formats)

	rtpmap, ok := md.Attribute("rtpmap")
	require.True(t, ok)
	require.Equal(t, "96 VP8/90000", rtpmap)
}

func TestSynthesize_AudioIncludesChannelCount(t *testing.T) {
	codec := sfurouter.CodecInfo{
		Kind:        sfurouter.KindAudio,
		PayloadType: 111,
		MimeName:    "opus",
		ClockRate:   48000,
		Channels:    2,
	}

	raw, err := Synthesize(codec, 40000)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "111 opus/48000/2"))
}

func TestSynthesize_FmtpOmittedWhenEmpty(t *testing.T) {
	codec := sfurouter.CodecInfo{Kind: sfurouter.KindVideo, PayloadType: 97, MimeName: "H264", ClockRate: 90000}
	raw, err := Synthesize(codec, 30000)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "a=fmtp"))
}

func TestSynthesize_FmtpIncludesPayloadTypeAndParams(t *testing.T) {
	codec := sfurouter.CodecInfo{
		Kind:        sfurouter.KindVideo,
		PayloadType: 97,
		MimeName:    "H264",
		ClockRate:   90000,
		FmtpLine:    "packetization-mode=1;profile-level-id=42e01f",
	}
	raw, err := Synthesize(codec, 30000)
	require.NoError(t, err)

	var parsed sdp.SessionDescription
	require.NoError(t, parsed.Unmarshal(raw))
	fmtp, ok := parsed.MediaDescriptions[0].Attribute("fmtp")
	require.True(t, ok)
	require.Equal(t, "97 packetization-mode=1;profile-level-id=42e01f", fmtp)
}

func TestSynthesize_RtcpPortIsRtpPortPlusOne(t *testing.T) {
	codec := sfurouter.CodecInfo{Kind: sfurouter.KindVideo, PayloadType: 96, MimeName: "VP8", ClockRate: 90000}
	raw, err := Synthesize(codec, 30010)
	require.NoError(t, err)

	var parsed sdp.SessionDescription
	require.NoError(t, parsed.Unmarshal(raw))
	rtcp, ok := parsed.MediaDescriptions[0].Attribute("rtcp")
	require.True(t, ok)
	require.Equal(t, "30011 IN IP4 127.0.0.1", rtcp)
}
