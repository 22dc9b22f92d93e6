// Package push implements a small test pusher: it encodes full-frame data
// datagrams and sends them to a server, useful for checking a display
// end to end without a lighting controller.
package push

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"matrixpush/internal/protocol"
	"matrixpush/pkg/config"
)

const frames = 30

// Run sends a short burst of full frames of a solid color to the target
// host. Usage: push <host> [rrggbb]
func Run(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(args) < 1 {
		return fmt.Errorf("usage: push <host> [rrggbb]")
	}
	host := args[0]

	r, g, b := uint8(0xff), uint8(0), uint8(0)
	if len(args) > 1 {
		r, g, b, err = parseColor(args[1])
		if err != nil {
			return err
		}
	}

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, cfg.Server.ListenPort))
	if err != nil {
		return fmt.Errorf("resolving %s: %w", host, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	rows, cols := cfg.Display.Rows, cfg.Display.Columns
	strip := make([]byte, 3*cols)
	for x := 0; x < cols; x++ {
		strip[3*x] = r
		strip[3*x+1] = g
		strip[3*x+2] = b
	}

	pkt := make([]byte, 0, protocol.SequenceSize+rows*protocol.StripRecordSize(cols))
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

	for seq := uint32(1); seq <= frames; seq++ {
		pkt = protocol.AppendSequence(pkt[:0], seq)
		for y := 0; y < rows; y++ {
			pkt = protocol.AppendStripRecord(pkt, uint8(y), strip)
		}
		if _, err := conn.Write(pkt); err != nil {
			return fmt.Errorf("sending frame %d: %w", seq, err)
		}
		<-ticker.C
	}

	fmt.Printf("Sent %d frames of #%02x%02x%02x to %s\n", frames, r, g, b, addr)
	return nil
}

func parseColor(s string) (r, g, b uint8, err error) {
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("color must be rrggbb hex, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("color must be rrggbb hex, got %q", s)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
