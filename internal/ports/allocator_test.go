package ports

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatePair_PortsFree(t *testing.T) {
	a := New(20000, 21000, 50)
	port, err := a.AllocatePair()
	require.NoError(t, err)
	require.GreaterOrEqual(t, port, 20000)

	l1, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: port})
	require.NoError(t, err)
	defer l1.Close()

	l2, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: port + 1})
	require.NoError(t, err)
	defer l2.Close()
}

func TestAllocatePair_NoCollisionAcrossCalls(t *testing.T) {
	a := New(22000, 22010, 50)
	p1, err := a.AllocatePair()
	require.NoError(t, err)
	l1, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: p1})
	require.NoError(t, err)
	defer l1.Close()
	l1b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: p1 + 1})
	require.NoError(t, err)
	defer l1b.Close()

	p2, err := a.AllocatePair()
	require.NoError(t, err)
	require.NotEqual(t, p1, p2, "second allocation must not collide with the still-held first pair")
}

func TestAllocatePair_ExhaustionWhenRangeFull(t *testing.T) {
	// A single-candidate range where that candidate is already held.
	held, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(loopback), Port: 0})
	require.NoError(t, err)
	defer held.Close()
	p := held.LocalAddr().(*net.UDPAddr).Port

	a := New(p, p+1, 5)
	_, err = a.AllocatePair()
	require.ErrorIs(t, err, ErrResourceExhaustion)
}
