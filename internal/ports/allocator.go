// Package ports allocates free UDP port pairs on the loopback interface
// for RTP/RTCP.
package ports

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
)

// ErrResourceExhaustion is returned when no free port (pair) could be
// found within the configured retry budget.
var ErrResourceExhaustion = errors.New("ports: no free UDP port pair found")

const loopback = "127.0.0.1"

// Allocator samples candidate UDP ports on 127.0.0.1 and verifies they are
// free by binding and immediately releasing a probe socket.
type Allocator struct {
	min, max    int
	maxAttempts int
	rng         *rand.Rand
}

// New creates an Allocator drawing candidates from [min, max); every
// port it hands out, including a pair's P+1, is below max. A maxAttempts
// below 1 defaults to 50.
func New(min, max, maxAttempts int) *Allocator {
	if maxAttempts < 1 {
		maxAttempts = 50
	}
	if max <= min {
		max = min + 1
	}
	return &Allocator{min: min, max: max, maxAttempts: maxAttempts, rng: rand.New(rand.NewSource(int64(min*31 + max)))}
}

// Allocate returns a UDP port P on 127.0.0.1 free for RTP use alone (no
// RTCP pair required, e.g. a single per-participant video-or-audio input
// that multiplexes RTCP — kept for symmetry with AllocatePair; callers in
// this repository always use AllocatePair since non-muxed RTCP is
// mandatory here).
func (a *Allocator) Allocate() (int, error) {
	return a.allocate(false)
}

// AllocatePair returns a UDP port P such that both P and P+1 are
// currently free (P for RTP, P+1 for RTCP).
func (a *Allocator) AllocatePair() (int, error) {
	return a.allocate(true)
}

func (a *Allocator) allocate(pair bool) (int, error) {
	span := a.max - a.min
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		candidate := a.min + a.rng.Intn(span)
		if pair && candidate >= a.max-1 {
			continue
		}
		if a.probe(candidate, pair) {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("ports: %w (range %d-%d, %d attempts)", ErrResourceExhaustion, a.min, a.max, a.maxAttempts)
}

// probe binds candidate (and candidate+1 when pair is true) exclusively on
// 127.0.0.1, closing both sockets before returning, so the window between
// probe and actual use is the only race exposure.
func (a *Allocator) probe(candidate int, pair bool) bool {
	l1, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: candidate})
	if err != nil {
		return false
	}
	defer l1.Close()

	if !pair {
		return true
	}

	l2, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: candidate + 1})
	if err != nil {
		return false
	}
	defer l2.Close()
	return true
}
