// Package sfurouter defines the capability interface the recording
// orchestrator uses to talk to an externally maintained SFU (router,
// producers, consumers). The real SFU is out of scope for this
// repository; callers depend only on this small surface, so the
// orchestrator can be exercised in tests against Fake instead of a live
// media router.
package sfurouter

import (
	"context"
	"errors"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// Kind discriminates audio/video without resorting to stringly-typed
// parameters past the binder boundary.
type Kind = webrtc.RTPCodecType

const (
	KindAudio = webrtc.RTPCodecTypeAudio
	KindVideo = webrtc.RTPCodecTypeVideo
)

// ErrCannotConsume is returned by Router.CanConsume-gated calls when the
// router lacks the RTP capabilities to forward a given producer under the
// recorder's capability set. This is a skip, not a fatal start error.
var ErrCannotConsume = errors.New("sfurouter: router cannot consume producer under recorder capabilities")

// CodecInfo is a discriminated codec variant: a producer/consumer's
// negotiated RTP parameters for exactly one kind.
type CodecInfo struct {
	Kind          Kind
	PayloadType   uint8
	MimeName      string // e.g. "VP8", "opus", "H264"
	ClockRate     uint32
	Channels      uint16 // audio only; 0 means "unspecified" (SDP synth defaults to 2)
	FmtpLine      string // codec format parameters, already k=v;k=v joined, "" if none
}

// Producer is an SFU-side incoming RTP stream from one session participant.
type Producer interface {
	ID() string
	// PeerID identifies the participant this producer belongs to,
	// distinct from the producer's own id (one peer may have both an
	// audio and a video producer). Used to name per-participant output
	// files ("<kind>-<peer>-<producer>.webm").
	PeerID() string
	Kind() Kind
	// RTPParameters returns the producer's own negotiated parameters
	// (informational only — SDP synthesis must use the Consumer's).
	RTPParameters() CodecInfo
	// Closed reports whether the producer has already terminated.
	Closed() bool
}

// Endpoint is a loopback plain RTP transport: 127.0.0.1, non-mux RTCP,
// non-comedia.
type Endpoint interface {
	// Connect statically declares the remote peer (non-comedia): RTP to
	// peerPort, RTCP to peerPort+1.
	Connect(ctx context.Context, peerPort int) error
	Close() error
}

// Consumer binds (Producer, Endpoint); created paused, transitions to
// flowing on Resume.
type Consumer interface {
	Kind() Kind
	// RTPParameters returns the consumer-assigned parameters — these may
	// differ from the producer's (SFU payload-type renumbering) and are
	// what the SDP Synthesizer must use.
	RTPParameters() CodecInfo
	Resume(ctx context.Context) error
	// RequestKeyFrame asks the producer (via the router) for a new IDR,
	// realized as a PictureLossIndication per RFC 4585 §6.3.1.
	RequestKeyFrame(ctx context.Context) error
	Close() error
}

// Router is the capability set the orchestrator depends on. A concrete
// adapter wraps the real SFU's router/peer/producer types; Fake
// implements the same interface in-memory for tests.
type Router interface {
	// Ready reports whether the router exists and has RTP capabilities
	// (ErrRouterUnready when false).
	Ready() bool
	// CanConsume reports whether the router can forward producer under
	// the given capability set.
	CanConsume(producer Producer) bool
	CreatePlainTransport(ctx context.Context) (Endpoint, error)
	// Consume creates a paused consumer of producer on transport.
	Consume(ctx context.Context, transport Endpoint, producer Producer) (Consumer, error)
	// Producers returns the router's producer set, of every kind.
	Producers() []Producer
}

// pliPacket builds the RTCP feedback packet a real Consumer.RequestKeyFrame
// implementation sends upstream through the router.
func pliPacket(mediaSSRC uint32) rtcp.Packet {
	return &rtcp.PictureLossIndication{MediaSSRC: mediaSSRC}
}
