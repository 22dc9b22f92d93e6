package receiver

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"matrixpush/internal/beacon"
	"matrixpush/internal/device"
	"matrixpush/internal/protocol"
)

func testRig(strips, pixelsPerStrip int) (*Receiver, *device.MemoryOutput, *beacon.Beacon) {
	out := device.NewMemoryOutput(strips, pixelsPerStrip)
	container := protocol.Container{
		Base: protocol.PixelPusherBase{
			StripsAttached: uint8(strips),
			PixelsPerStrip: uint16(pixelsPerStrip),
			StripFlags:     make([]byte, strips),
		},
	}
	b := beacon.New(protocol.DiscoveryPacketHeader{}, container, "", protocol.DiscoveryPort, zerolog.Nop())
	r := New(out, b, zerolog.Nop())
	r.initCanvases()
	return r, out, b
}

func solidStrip(pixelsPerStrip int, r, g, b uint8) []byte {
	px := make([]byte, 3*pixelsPerStrip)
	for x := 0; x < pixelsPerStrip; x++ {
		px[3*x] = r
		px[3*x+1] = g
		px[3*x+2] = b
	}
	return px
}

func fullRedFrame(seq uint32, strips, pixelsPerStrip int) []byte {
	pkt := protocol.AppendSequence(nil, seq)
	for y := 0; y < strips; y++ {
		pkt = protocol.AppendStripRecord(pkt, uint8(y), solidStrip(pixelsPerStrip, 0xff, 0, 0))
	}
	return pkt
}

func deltaOf(t *testing.T, b *beacon.Beacon) uint32 {
	t.Helper()
	_, c, err := protocol.ParseDiscovery(b.Snapshot())
	if err != nil {
		t.Fatalf("parsing snapshot: %v", err)
	}
	return c.Base.DeltaSequence
}

func TestFullFrame_DrawnAndSwapped(t *testing.T) {
	r, out, b := testRig(2, 3)

	r.handleDatagram(fullRedFrame(1, 2, 3), time.Now())

	if out.Swaps() != 1 {
		t.Fatalf("swaps: got %d, want 1", out.Swaps())
	}
	screen := out.OnScreen()
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			cr, cg, cb := screen.At(x, y)
			if cr != 0xff || cg != 0 || cb != 0 {
				t.Errorf("pixel (%d,%d): got %02x%02x%02x, want ff0000", x, y, cr, cg, cb)
			}
		}
	}
	if got := deltaOf(t, b); got != 0 {
		t.Errorf("delta after first frame: got %d, want 0", got)
	}
	if b.LastSequence() != 1 {
		t.Errorf("last sequence: got %d, want 1", b.LastSequence())
	}
}

func TestFullFrame_RepeatIsIdempotent(t *testing.T) {
	r, out, _ := testRig(2, 3)

	r.handleDatagram(fullRedFrame(1, 2, 3), time.Now())
	r.handleDatagram(fullRedFrame(2, 2, 3), time.Now())

	if out.Swaps() != 2 {
		t.Fatalf("swaps: got %d, want 2", out.Swaps())
	}
	screen := out.OnScreen()
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			cr, cg, cb := screen.At(x, y)
			if cr != 0xff || cg != 0 || cb != 0 {
				t.Errorf("pixel (%d,%d): got %02x%02x%02x, want ff0000", x, y, cr, cg, cb)
			}
		}
	}
}

func TestSequenceGap(t *testing.T) {
	r, _, b := testRig(4, 3)

	one := func(seq uint32) []byte {
		pkt := protocol.AppendSequence(nil, seq)
		return protocol.AppendStripRecord(pkt, 0, solidStrip(3, 0, 0xff, 0))
	}
	r.handleDatagram(one(0), time.Now())
	r.handleDatagram(one(5), time.Now())

	if got := deltaOf(t, b); got != 4 {
		t.Errorf("delta: got %d, want 4", got)
	}
	// No new traffic: the following beacon reports 0.
	if got := deltaOf(t, b); got != 0 {
		t.Errorf("delta after beacon: got %d, want 0", got)
	}
}

func TestPartialUpdate_NoSwap(t *testing.T) {
	r, out, _ := testRig(4, 3)

	pkt := protocol.AppendSequence(nil, 1)
	pkt = protocol.AppendStripRecord(pkt, 1, solidStrip(3, 0, 0, 0xff))
	pkt = protocol.AppendStripRecord(pkt, 2, solidStrip(3, 0, 0, 0xff))
	r.handleDatagram(pkt, time.Now())

	if out.Swaps() != 0 {
		t.Errorf("swaps: got %d, want 0 for a partial update", out.Swaps())
	}
	// Partial updates land straight on the displayed canvas.
	screen := out.OnScreen()
	for _, y := range []int{1, 2} {
		cr, cg, cb := screen.At(0, y)
		if cr != 0 || cg != 0 || cb != 0xff {
			t.Errorf("pixel (0,%d): got %02x%02x%02x, want 0000ff", y, cr, cg, cb)
		}
	}
	cr, cg, cb := screen.At(0, 0)
	if cr != 0 || cg != 0 || cb != 0 {
		t.Errorf("untouched strip modified: got %02x%02x%02x", cr, cg, cb)
	}
}

func TestPusherCommand_Ignored(t *testing.T) {
	r, out, b := testRig(2, 3)

	pkt := protocol.AppendSequence(nil, 7)
	pkt = append(pkt,
		0x40, 0x09, 0x2d, 0xa6, 0x15, 0xa5, 0xdd, 0xe5,
		0x6a, 0x9d, 0x4d, 0x5a, 0xcf, 0x09, 0xaf, 0x50,
		0x01, 0x02, 0x03)
	r.handleDatagram(pkt, time.Now())

	if out.Swaps() != 0 {
		t.Errorf("swaps: got %d, want 0", out.Swaps())
	}
	if b.LastSequence() != -1 {
		t.Errorf("previous sequence changed by a command: got %d, want -1", b.LastSequence())
	}
	if r.Commands() != 1 {
		t.Errorf("commands: got %d, want 1", r.Commands())
	}
	if r.Discards() != 0 {
		t.Errorf("discards: got %d, want 0", r.Discards())
	}
}

func TestMisalignedPayload_Discarded(t *testing.T) {
	r, out, b := testRig(2, 3)

	// One byte more than a full strip record (W=3 means records of 10 bytes).
	pkt := protocol.AppendSequence(nil, 1)
	pkt = append(pkt, make([]byte, 11)...)
	r.handleDatagram(pkt, time.Now())

	if r.Discards() != 1 {
		t.Errorf("discards: got %d, want 1", r.Discards())
	}
	if out.Swaps() != 0 {
		t.Errorf("swaps: got %d, want 0", out.Swaps())
	}
	if b.LastSequence() != -1 {
		t.Errorf("stats recorded for a discarded datagram: got %d, want -1", b.LastSequence())
	}
}

func TestEmptyPayload_Discarded(t *testing.T) {
	r, _, b := testRig(2, 3)

	r.handleDatagram(protocol.AppendSequence(nil, 9), time.Now())

	if r.Discards() != 1 {
		t.Errorf("discards: got %d, want 1", r.Discards())
	}
	if b.LastSequence() != -1 {
		t.Errorf("stats recorded for an empty frame: got %d, want -1", b.LastSequence())
	}
}

func TestShortDatagram_Discarded(t *testing.T) {
	r, _, b := testRig(2, 3)

	r.handleDatagram([]byte{1, 2, 3}, time.Now())

	if r.Discards() != 1 {
		t.Errorf("discards: got %d, want 1", r.Discards())
	}
	if b.LastSequence() != -1 {
		t.Errorf("stats recorded for a short datagram: got %d, want -1", b.LastSequence())
	}
}

func TestStripIndexOutOfRange_RecordSkipped(t *testing.T) {
	r, out, b := testRig(2, 3)

	// Two records make this a full frame, but the second one addresses a
	// strip the display does not have.
	pkt := protocol.AppendSequence(nil, 1)
	pkt = protocol.AppendStripRecord(pkt, 0, solidStrip(3, 0xff, 0, 0))
	pkt = protocol.AppendStripRecord(pkt, 2, solidStrip(3, 0xff, 0, 0))
	r.handleDatagram(pkt, time.Now())

	if out.Swaps() != 1 {
		t.Fatalf("swaps: got %d, want 1", out.Swaps())
	}
	screen := out.OnScreen()
	cr, _, _ := screen.At(0, 0)
	if cr != 0xff {
		t.Errorf("valid record not drawn: got red=%02x", cr)
	}
	cr, cg, cb := screen.At(0, 1)
	if cr != 0 || cg != 0 || cb != 0 {
		t.Errorf("out-of-range record leaked into row 1: got %02x%02x%02x", cr, cg, cb)
	}
	if b.LastSequence() != 1 {
		t.Errorf("stats not recorded for an otherwise valid datagram: got %d", b.LastSequence())
	}
}

func TestBoundaryStripIndex_Valid(t *testing.T) {
	r, out, _ := testRig(4, 3)

	pkt := protocol.AppendSequence(nil, 1)
	pkt = protocol.AppendStripRecord(pkt, 3, solidStrip(3, 0, 0xff, 0))
	r.handleDatagram(pkt, time.Now())

	_, cg, _ := out.OnScreen().At(0, 3)
	if cg != 0xff {
		t.Errorf("last strip not drawn: got green=%02x", cg)
	}
}
