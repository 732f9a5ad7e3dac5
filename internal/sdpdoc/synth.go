// Package sdpdoc synthesizes the session-description document a muxer
// reads to understand the RTP it is about to receive.
package sdpdoc

import (
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"

	"github.com/aura-webinar/recorder/internal/sfurouter"
)

const defaultAudioChannels = 2

// Synthesize produces a minimal session description with one media
// section describing codec: fixed preamble, `m=<kind> <port> RTP/AVP
// <pt>`, `a=rtpmap`, `a=rtcp:<port+1>`, `a=recvonly`, and `a=fmtp` when
// format parameters are present.
//
// codec must be the *consumer's* negotiated parameters, never the
// producer's — the SFU may renumber payload types on the consumer
// side.
func Synthesize(codec sfurouter.CodecInfo, port int) ([]byte, error) {
	mediaKind := "audio"
	if codec.Kind == sfurouter.KindVideo {
		mediaKind = "video"
	}

	channels := codec.Channels
	if mediaKind == "audio" && channels == 0 {
		channels = defaultAudioChannels
	}

	rtpmap := fmt.Sprintf("%d %s/%d", codec.PayloadType, codec.MimeName, codec.ClockRate)
	if mediaKind == "audio" {
		rtpmap = fmt.Sprintf("%d %s/%d/%d", codec.PayloadType, codec.MimeName, codec.ClockRate, channels)
	}

	attrs := []sdp.Attribute{
		{Key: "rtpmap", Value: rtpmap},
		{Key: "rtcp", Value: fmt.Sprintf("%d IN IP4 127.0.0.1", port+1)},
		{Key: "recvonly"},
	}
	if codec.FmtpLine != "" {
		attrs = append(attrs, sdp.Attribute{
			Key:   "fmtp",
			Value: strconv.Itoa(int(codec.PayloadType)) + " " + codec.FmtpLine,
		})
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(port), // stable per-input identifier; value itself is not interpreted by the muxer
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "recording",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "127.0.0.1"},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   mediaKind,
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{strconv.Itoa(int(codec.PayloadType))},
				},
				Attributes: attrs,
			},
		},
	}

	return desc.Marshal()
}
