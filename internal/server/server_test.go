package server

import (
	"testing"

	"github.com/rs/zerolog"

	"matrixpush/internal/device"
)

func TestStart_RejectsBadUDPPacketSize(t *testing.T) {
	out := device.NewMemoryOutput(2, 3)

	for _, size := range []int{-1, 1, 199, 65508, 100000} {
		if _, err := Start(Options{UDPPacketSize: size}, out, zerolog.Nop()); err == nil {
			t.Errorf("udp_packet_size %d accepted, want error", size)
		}
	}
}

func TestStart_RejectsZeroMaxStripsPerPacket(t *testing.T) {
	// 200-byte packets cannot carry a single 128-pixel strip record
	// (1 + 3*128 = 385 bytes).
	out := device.NewMemoryOutput(2, 128)

	if _, err := Start(Options{UDPPacketSize: 200}, out, zerolog.Nop()); err == nil {
		t.Error("expected error when no strip fits in a packet")
	}
}

func TestStart_RejectsTooManyStrips(t *testing.T) {
	out := device.NewMemoryOutput(300, 8)

	if _, err := Start(Options{}, out, zerolog.Nop()); err == nil {
		t.Error("expected error for more strips than a byte index can address")
	}
}
