// Package beacon implements the once-per-second PixelPusher discovery
// broadcast and the statistics coupler the receiver reports into.
package beacon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"matrixpush/internal/protocol"
)

const interval = time.Second

// Beacon broadcasts the discovery packet and owns the mutable pusher
// statistics. The header and everything in the container except
// update_period and delta_sequence are immutable after construction;
// the two mutable fields are written by the receiver through Record and
// read at serialization time, all under one mutex.
type Beacon struct {
	log   zerolog.Logger
	iface string
	port  int

	header protocol.DiscoveryPacketHeader

	mu               sync.Mutex
	container        protocol.Container
	previousSequence int64
	packet           []byte

	conn     *net.UDPConn
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a beacon for the given identity. previousSequence starts at
// -1 so a first data packet with sequence 0 yields a zero gap.
func New(header protocol.DiscoveryPacketHeader, container protocol.Container, iface string, port int, log zerolog.Logger) *Beacon {
	return &Beacon{
		log:              log,
		iface:            iface,
		port:             port,
		header:           header,
		container:        container,
		previousSequence: -1,
		packet:           make([]byte, 0, protocol.DiscoverySize(int(container.Base.StripsAttached))),
		stop:             make(chan struct{}),
	}
}

// Record is the statistics bridge from the receiver. It accounts positive
// sequence gaps into delta_sequence, resynchronizes the baseline on every
// packet, and stores the measured frame time clamped to the minimum
// advertised update period.
func (b *Beacon) Record(seenSequence uint32, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	us := elapsed.Microseconds()
	if us < protocol.MinUpdatePeriodUSec {
		us = protocol.MinUpdatePeriodUSec
	}
	b.container.Base.UpdatePeriod = uint32(us)

	gap := int64(seenSequence) - b.previousSequence - 1
	if gap > 0 {
		b.container.Base.DeltaSequence += uint32(gap)
	}
	b.previousSequence = int64(seenSequence)
}

// Snapshot serializes the discovery packet into the beacon's send buffer
// and zeroes delta_sequence, so the next beacon reports only gaps
// accumulated after this one. The returned slice is reused by the next
// call.
func (b *Beacon) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.packet = b.header.AppendTo(b.packet[:0])
	b.packet = b.container.AppendTo(b.packet)
	b.container.Base.DeltaSequence = 0
	return b.packet
}

// LastSequence returns the most recently recorded sequence number, or -1
// before any packet arrived.
func (b *Beacon) LastSequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.previousSequence
}

// UpdatePeriod returns the currently advertised update period in
// microseconds.
func (b *Beacon) UpdatePeriod() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.container.Base.UpdatePeriod
}

// Open creates the broadcast socket. Called before Run so a socket
// failure is fatal at startup.
func (b *Beacon) Open() error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return fmt.Errorf("opening broadcast socket: %w", err)
	}
	conn := pc.(*net.UDPConn)

	if b.iface != "" {
		iface, err := net.InterfaceByName(b.iface)
		if err != nil {
			conn.Close()
			return fmt.Errorf("finding interface %s: %w", b.iface, err)
		}
		p := ipv4.NewPacketConn(conn)
		if err := p.SetMulticastInterface(iface); err != nil {
			b.log.Warn().Err(err).Msg("Failed to pin broadcast interface")
		}
		if err := p.SetMulticastTTL(1); err != nil {
			b.log.Warn().Err(err).Msg("Failed to set TTL")
		}
	}

	if err := conn.SetWriteBuffer(4096); err != nil {
		b.log.Warn().Err(err).Msg("Failed to set write buffer")
	}

	b.conn = conn
	return nil
}

// Run broadcasts the discovery packet once per second until Stop. Send
// errors are logged and the loop continues.
func (b *Beacon) Run() {
	defer b.conn.Close()

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: b.port}

	b.log.Info().
		Int("port", b.port).
		Int("packet_bytes", protocol.DiscoverySize(int(b.container.Base.StripsAttached))).
		Msg("Discovery beacon started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pkt := b.Snapshot()
		if _, err := b.conn.WriteToUDP(pkt, dst); err != nil {
			b.log.Error().Err(err).Str("target", dst.String()).Msg("Failed to send discovery beacon")
		}

		select {
		case <-ticker.C:
		case <-b.stop:
			return
		}
	}
}

// Stop makes Run return at its next wait, without waiting for the tick.
func (b *Beacon) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// Close releases the broadcast socket when Run was never started.
func (b *Beacon) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
