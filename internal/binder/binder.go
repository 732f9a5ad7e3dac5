// Package binder attaches a recording consumer to one SFU producer and
// connects it to a loopback RTP port.
package binder

import (
	"context"
	"errors"
	"fmt"

	"github.com/aura-webinar/recorder/internal/ports"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

// ErrCannotConsume is returned when the router cannot forward a producer
// under the recorder's capability set. Callers treat this as a skip
// (warning), never a fatal start error.
var ErrCannotConsume = sfurouter.ErrCannotConsume

// Input is the fully bound result of attaching one producer.
type Input struct {
	Producer sfurouter.Producer
	Endpoint sfurouter.Endpoint
	Consumer sfurouter.Consumer
	Codec    sfurouter.CodecInfo
	Port     int // RTP port; RTCP is Port+1
}

// Bind runs five steps: precondition check, plain transport, paused
// consumer, port allocation, connect. On any failure after transport
// creation it closes what it already created before returning, so a
// bind failure never leaks a socket or consumer.
func Bind(ctx context.Context, router sfurouter.Router, producer sfurouter.Producer, alloc *ports.Allocator) (*Input, error) {
	if !router.CanConsume(producer) {
		return nil, fmt.Errorf("binder: producer %s: %w", producer.ID(), ErrCannotConsume)
	}

	transport, err := router.CreatePlainTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("binder: create transport for producer %s: %w", producer.ID(), err)
	}

	consumer, err := router.Consume(ctx, transport, producer)
	if err != nil {
		_ = transport.Close()
		if errors.Is(err, sfurouter.ErrCannotConsume) {
			return nil, fmt.Errorf("binder: producer %s: %w", producer.ID(), ErrCannotConsume)
		}
		return nil, fmt.Errorf("binder: create consumer for producer %s: %w", producer.ID(), err)
	}

	port, err := alloc.AllocatePair()
	if err != nil {
		_ = consumer.Close()
		_ = transport.Close()
		return nil, fmt.Errorf("binder: allocate port for producer %s: %w", producer.ID(), err)
	}

	if err := transport.Connect(ctx, port); err != nil {
		_ = consumer.Close()
		_ = transport.Close()
		return nil, fmt.Errorf("binder: connect transport for producer %s: %w", producer.ID(), err)
	}

	return &Input{
		Producer: producer,
		Endpoint: transport,
		Consumer: consumer,
		Codec:    consumer.RTPParameters(),
		Port:     port,
	}, nil
}

// Close releases the consumer and endpoint of a bound input, tolerating
// either being nil (partially torn down elsewhere).
func (in *Input) Close() {
	if in == nil {
		return
	}
	if in.Consumer != nil {
		_ = in.Consumer.Close()
	}
	if in.Endpoint != nil {
		_ = in.Endpoint.Close()
	}
}
