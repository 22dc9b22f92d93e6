// Package server wires the network probe, beacon and receiver into one
// PixelPusher endpoint with a start/stop lifecycle.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"matrixpush/internal/beacon"
	"matrixpush/internal/device"
	"matrixpush/internal/netprobe"
	"matrixpush/internal/protocol"
	"matrixpush/internal/receiver"
	"matrixpush/internal/rpc"
)

const (
	probeAttempts = 60
	probeDelay    = time.Second

	minUDPPacketSize = 200
)

// Options are the startup parameters affecting the wire contract.
type Options struct {
	Interface      string
	ListenPort     int
	DiscoveryPort  int
	UDPPacketSize  int
	Logarithmic    bool
	Controller     int32
	Group          int32
	ArtnetUniverse uint16
	ArtnetChannel  uint16
}

// Server is a running PixelPusher endpoint.
type Server struct {
	log     zerolog.Logger
	out     device.Output
	beacon  *beacon.Beacon
	recv    *receiver.Receiver
	started time.Time
	wg      sync.WaitGroup
}

// Start probes the network, validates the options against the device
// geometry and launches the beacon and receiver. Any failure here is
// fatal; nothing has been started when an error returns.
func Start(opts Options, out device.Output, log zerolog.Logger) (*Server, error) {
	if opts.ListenPort == 0 {
		opts.ListenPort = protocol.ListenPort
	}
	if opts.DiscoveryPort == 0 {
		opts.DiscoveryPort = protocol.DiscoveryPort
	}
	if opts.UDPPacketSize == 0 {
		opts.UDPPacketSize = protocol.MaxUDPPacketSize
	}
	if opts.UDPPacketSize < minUDPPacketSize || opts.UDPPacketSize > protocol.MaxUDPPacketSize {
		return nil, fmt.Errorf("udp_packet_size %d outside [%d, %d]",
			opts.UDPPacketSize, minUDPPacketSize, protocol.MaxUDPPacketSize)
	}

	strips := out.NumStrips()
	pixelsPerStrip := out.PixelsPerStrip()
	if strips < 1 || strips > 255 {
		return nil, fmt.Errorf("device has %d strips, want 1..255", strips)
	}

	recordSize := protocol.StripRecordSize(pixelsPerStrip)
	maxStripsPerPacket := (opts.UDPPacketSize - protocol.SequenceSize) / recordSize
	if maxStripsPerPacket > strips {
		maxStripsPerPacket = strips
	}
	if maxStripsPerPacket < 1 {
		return nil, fmt.Errorf("udp_packet_size %d cannot carry one strip of %d pixels",
			opts.UDPPacketSize, pixelsPerStrip)
	}

	mac, ip, err := netprobe.ProbeRetry(opts.Interface, probeAttempts, probeDelay, log)
	if err != nil {
		return nil, err
	}

	header := protocol.DiscoveryPacketHeader{
		MACAddress:      mac,
		IPAddress:       ip,
		DeviceType:      protocol.DeviceTypePixelPusher,
		ProtocolVersion: 1,
		VendorID:        protocol.VendorID,
		ProductID:       0,
		SWRevision:      protocol.SWRevision,
		LinkSpeed:       protocol.LinkSpeed,
	}

	stripFlags := make([]byte, strips)
	if opts.Logarithmic {
		for i := range stripFlags {
			stripFlags[i] = protocol.SFlagLogarithmic
		}
	}

	container := protocol.Container{
		Base: protocol.PixelPusherBase{
			StripsAttached:     uint8(strips),
			MaxStripsPerPacket: uint8(maxStripsPerPacket),
			PixelsPerStrip:     uint16(pixelsPerStrip),
			UpdatePeriod:       protocol.MinUpdatePeriodUSec, // until measured
			PowerTotal:         1,
			ControllerOrdinal:  opts.Controller,
			GroupOrdinal:       opts.Group,
			ArtnetUniverse:     opts.ArtnetUniverse,
			ArtnetChannel:      opts.ArtnetChannel,
			MyPort:             uint16(opts.ListenPort),
			StripFlags:         stripFlags,
		},
	}

	log.Info().
		Int("strips", strips).
		Int("pixels_per_strip", pixelsPerStrip).
		Int("max_strips_per_packet", maxStripsPerPacket).
		Msg("Pusher geometry")

	b := beacon.New(header, container, opts.Interface, opts.DiscoveryPort, log)
	if err := b.Open(); err != nil {
		return nil, err
	}

	r := receiver.New(out, b, log)
	if err := r.Listen(opts.ListenPort); err != nil {
		b.Close()
		return nil, err
	}

	s := &Server{
		log:     log,
		out:     out,
		beacon:  b,
		recv:    r,
		started: time.Now(),
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		r.Run()
	}()
	go func() {
		defer s.wg.Done()
		b.Run()
	}()

	return s, nil
}

// Shutdown stops both loops and waits for them to exit. The receiver is
// unblocked by closing its socket; the beacon's wait ends when its stop
// channel closes.
func (s *Server) Shutdown() {
	s.recv.Stop()
	s.beacon.Stop()
	s.wg.Wait()
	s.log.Info().Msg("Server stopped")
}

// Stats implements rpc.StatsSource.
func (s *Server) Stats() rpc.Snapshot {
	return rpc.Snapshot{
		Uptime:           time.Since(s.started),
		StripsAttached:   s.out.NumStrips(),
		PixelsPerStrip:   s.out.PixelsPerStrip(),
		PacketsReceived:  s.recv.Packets(),
		BytesReceived:    s.recv.Bytes(),
		Discards:         s.recv.Discards(),
		PusherCommands:   s.recv.Commands(),
		LastSequence:     s.beacon.LastSequence(),
		UpdatePeriodUSec: s.beacon.UpdatePeriod(),
	}
}
