package sfurouter

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
)

// Fake is an in-memory Router implementation for tests, so the
// orchestrator can be unit-tested without a real SFU. It never touches
// the network; CreatePlainTransport/Consume return bookkeeping
// stand-ins whose Connect/Resume/RequestKeyFrame calls are recorded for
// assertions.
type Fake struct {
	mu         sync.Mutex
	ready      bool
	producers  []*FakeProducer
	consumable map[string]bool // producer ID -> router can consume it

	keyframes atomic.Int64 // total RequestKeyFrame calls across all consumers
}

// NewFake creates a Fake router, ready by default.
func NewFake() *Fake {
	return &Fake{ready: true, consumable: make(map[string]bool)}
}

// SetReady toggles router readiness.
func (f *Fake) SetReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

func (f *Fake) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// AddProducer registers a producer as consumable (the common case).
func (f *Fake) AddProducer(p *FakeProducer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.producers = append(f.producers, p)
	f.consumable[p.id] = true
}

// DenyConsume marks a producer as not consumable under the recorder's
// capability set, forcing CanConsume to return false.
func (f *Fake) DenyConsume(producerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumable[producerID] = false
}

// CloseProducer marks a producer closed, simulating a participant leaving
// mid-recording.
func (f *Fake) CloseProducer(producerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.producers {
		if p.id == producerID {
			p.closed.Store(true)
		}
	}
}

func (f *Fake) CanConsume(producer Producer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumable[producer.ID()]
}

func (f *Fake) CreatePlainTransport(ctx context.Context) (Endpoint, error) {
	return &fakeEndpoint{}, nil
}

func (f *Fake) Consume(ctx context.Context, transport Endpoint, producer Producer) (Consumer, error) {
	if !f.CanConsume(producer) {
		return nil, ErrCannotConsume
	}
	fp, ok := producer.(*FakeProducer)
	if !ok {
		return nil, fmt.Errorf("sfurouter: fake router given non-fake producer %T", producer)
	}
	return &fakeConsumer{producer: fp, router: f, params: fp.consumerParams}, nil
}

func (f *Fake) Producers() []Producer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Producer, len(f.producers))
	for i, p := range f.producers {
		out[i] = p
	}
	return out
}

// KeyframeRequests returns the total number of RequestKeyFrame calls
// observed across every consumer created by this router.
func (f *Fake) KeyframeRequests() int64 { return f.keyframes.Load() }

// FakeProducer is a test-double Producer. consumerParams lets tests give
// the consumer side parameters that differ from the producer's own (SFU
// payload-type renumbering).
type FakeProducer struct {
	id             string
	peerID         string
	kind           Kind
	producerParams CodecInfo
	consumerParams CodecInfo
	closed         atomic.Bool
}

// NewFakeProducer creates a fake producer owned by a peer sharing its
// id (the common one-producer-per-test-peer case). If consumerParams is
// the zero value, it defaults to producerParams (no renumbering).
func NewFakeProducer(id string, producerParams, consumerParams CodecInfo) *FakeProducer {
	return NewFakeProducerForPeer(id, id, producerParams, consumerParams)
}

// NewFakeProducerForPeer creates a fake producer with an explicit,
// independent peer id, for tests where one peer owns multiple producers
// (e.g. a video and an audio producer each).
func NewFakeProducerForPeer(id, peerID string, producerParams, consumerParams CodecInfo) *FakeProducer {
	if consumerParams.MimeName == "" {
		consumerParams = producerParams
	}
	return &FakeProducer{id: id, peerID: peerID, kind: producerParams.Kind, producerParams: producerParams, consumerParams: consumerParams}
}

func (p *FakeProducer) ID() string              { return p.id }
func (p *FakeProducer) PeerID() string          { return p.peerID }
func (p *FakeProducer) Kind() Kind              { return p.kind }
func (p *FakeProducer) RTPParameters() CodecInfo { return p.producerParams }
func (p *FakeProducer) Closed() bool             { return p.closed.Load() }

// SSRC derives a stable, non-zero media SSRC from the producer id, so
// PictureLossIndication feedback can name the producer it targets
// without the fake router needing to negotiate a real one.
func (p *FakeProducer) SSRC() uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.id))
	ssrc := h.Sum32()
	if ssrc == 0 {
		ssrc = 1
	}
	return ssrc
}

type fakeEndpoint struct {
	mu        sync.Mutex
	connected bool
	peerPort  int
	closed    bool
}

func (e *fakeEndpoint) Connect(ctx context.Context, peerPort int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = true
	e.peerPort = peerPort
	return nil
}

func (e *fakeEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type fakeConsumer struct {
	producer *FakeProducer
	router   *Fake
	params   CodecInfo

	mu       sync.Mutex
	resumed  bool
	closed   bool
	sentPLIs []rtcp.Packet
}

func (c *fakeConsumer) Kind() Kind               { return c.params.Kind }
func (c *fakeConsumer) RTPParameters() CodecInfo { return c.params }

func (c *fakeConsumer) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumed = true
	return nil
}

// RequestKeyFrame builds the PictureLossIndication a real adapter would
// send upstream through the router and records it, so tests can assert
// the feedback packet actually carries this consumer's producer SSRC.
func (c *fakeConsumer) RequestKeyFrame(ctx context.Context) error {
	if c.producer.Closed() {
		return fmt.Errorf("sfurouter: producer %s closed", c.producer.id)
	}
	pli := pliPacket(c.producer.SSRC())
	c.mu.Lock()
	c.sentPLIs = append(c.sentPLIs, pli)
	c.mu.Unlock()
	c.router.keyframes.Add(1)
	return nil
}

// SentPLIs returns every PictureLossIndication this consumer has sent,
// for test assertions.
func (c *fakeConsumer) SentPLIs() []rtcp.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rtcp.Packet, len(c.sentPLIs))
	copy(out, c.sentPLIs)
	return out
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
