// Package receiver implements the UDP ingest loop that decodes pusher
// data datagrams into the output device.
package receiver

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"matrixpush/internal/beacon"
	"matrixpush/internal/device"
	"matrixpush/internal/protocol"
)

// Receiver binds the data port, decodes strip records and draws them into
// the device. Full frames go to the off-screen canvas and are committed at
// vsync; partial updates go straight on screen.
type Receiver struct {
	out    device.Output
	beacon *beacon.Beacon
	log    zerolog.Logger

	conn            *net.UDPConn
	stripRecordSize int

	onScreen  device.Canvas
	offScreen device.Canvas

	packets  atomic.Uint64
	bytes    atomic.Uint64
	discards atomic.Uint64
	commands atomic.Uint64
}

// New creates a receiver drawing into out and reporting stats into b.
func New(out device.Output, b *beacon.Beacon, log zerolog.Logger) *Receiver {
	return &Receiver{
		out:             out,
		beacon:          b,
		log:             log,
		stripRecordSize: protocol.StripRecordSize(out.PixelsPerStrip()),
	}
}

// Listen binds the data socket. A bind failure is fatal at startup.
func (r *Receiver) Listen(port int) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return fmt.Errorf("binding data socket on port %d: %w", port, err)
	}
	if err := conn.SetReadBuffer(protocol.MaxUDPPacketSize); err != nil {
		r.log.Warn().Err(err).Msg("Failed to set read buffer")
	}
	r.conn = conn
	return nil
}

// Run receives datagrams until Stop closes the socket. Per-datagram errors
// are diagnosed and the loop continues.
func (r *Receiver) Run() {
	defer r.conn.Close()

	r.initCanvases()

	r.log.Info().
		Str("addr", r.conn.LocalAddr().String()).
		Int("strip_record_bytes", r.stripRecordSize).
		Msg("Listening for pushed pixels")

	buf := make([]byte, protocol.MaxUDPPacketSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Error().Err(err).Msg("Receive error")
			continue
		}
		start := time.Now()
		r.packets.Add(1)
		r.bytes.Add(uint64(n))
		r.handleDatagram(buf[:n], start)
	}
}

// initCanvases performs the startup handshake: allocate the off-screen
// canvas and obtain the currently displayed one from the device.
func (r *Receiver) initCanvases() {
	r.offScreen = r.out.CreateOffScreen()
	r.onScreen = r.out.SwapOnVSync(nil)
}

// handleDatagram classifies and draws one datagram. Pixels are written in
// (strip, x) order before the stats update; discarded datagrams never
// reach the stats.
func (r *Receiver) handleDatagram(pkt []byte, start time.Time) {
	seq, ok := protocol.ReadSequence(pkt)
	if !ok {
		r.discards.Add(1)
		r.log.Warn().Int("bytes", len(pkt)).Msg("Datagram too short for a sequence number")
		return
	}
	payload := pkt[protocol.SequenceSize:]

	if protocol.IsPusherCommand(payload) {
		r.commands.Add(1)
		r.log.Debug().Uint32("seq", seq).Msg("Pusher command ignored")
		return
	}

	if len(payload) == 0 {
		r.discards.Add(1)
		r.log.Warn().Uint32("seq", seq).Msg("Empty frame, no strip records")
		return
	}

	if len(payload)%r.stripRecordSize != 0 {
		r.discards.Add(1)
		r.log.Warn().
			Uint32("seq", seq).
			Int("payload_bytes", len(payload)).
			Int("strip_record_bytes", r.stripRecordSize).
			Int("leftover", len(payload)%r.stripRecordSize).
			Msg("Payload not a multiple of the strip record size")
		return
	}

	numStrips := r.out.NumStrips()
	pixelsPerStrip := r.out.PixelsPerStrip()
	receivedStrips := len(payload) / r.stripRecordSize

	// A datagram carrying every strip is a full frame: draw it off screen
	// and commit at vsync. Anything smaller is drawn straight on screen;
	// waiting for vsync would only delay it.
	fullFrame := receivedStrips == numStrips
	draw := r.onScreen
	if fullFrame {
		draw = r.offScreen
	}

	for i := 0; i < receivedStrips; i++ {
		rec := payload[i*r.stripRecordSize : (i+1)*r.stripRecordSize]
		strip := int(rec[0])
		if strip >= numStrips {
			r.log.Warn().
				Uint32("seq", seq).
				Int("strip", strip).
				Int("strips_attached", numStrips).
				Msg("Strip index out of range, record skipped")
			continue
		}
		px := rec[1:]
		for x := 0; x < pixelsPerStrip; x++ {
			draw.SetPixel(x, strip, px[3*x], px[3*x+1], px[3*x+2])
		}
	}

	if fullFrame {
		r.onScreen = r.offScreen
		r.offScreen = r.out.SwapOnVSync(r.offScreen)
		if r.offScreen == r.onScreen {
			r.log.Error().Msg("Device returned the buffer it was handed on swap")
		}
	}

	r.beacon.Record(seq, time.Since(start))
}

// Stop closes the data socket, unblocking the read loop.
func (r *Receiver) Stop() {
	if r.conn != nil {
		r.conn.Close()
	}
}

// Packets returns the number of datagrams received.
func (r *Receiver) Packets() uint64 { return r.packets.Load() }

// Bytes returns the number of datagram bytes received, sequence numbers
// included.
func (r *Receiver) Bytes() uint64 { return r.bytes.Load() }

// Discards returns the number of datagrams dropped as invalid.
func (r *Receiver) Discards() uint64 { return r.discards.Load() }

// Commands returns the number of pusher-command datagrams ignored.
func (r *Receiver) Commands() uint64 { return r.commands.Load() }
