package rpc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSource struct {
	snap Snapshot
}

func (f *fakeSource) Stats() Snapshot { return f.snap }

func TestStats_RoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "server.sock")

	src := &fakeSource{snap: Snapshot{
		Uptime:           42 * time.Second,
		StripsAttached:   64,
		PixelsPerStrip:   64,
		PacketsReceived:  1000,
		BytesReceived:    123456,
		Discards:         3,
		PusherCommands:   1,
		LastSequence:     999,
		UpdatePeriodUSec: 1851,
	}}

	if err := StartServer(sock, src, zerolog.Nop()); err != nil {
		t.Fatalf("starting RPC server: %v", err)
	}

	client, err := NewClient(sock)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer client.Close()

	snap, err := client.Stats()
	if err != nil {
		t.Fatalf("fetching stats: %v", err)
	}

	if snap != src.snap {
		t.Errorf("snapshot: got %+v, want %+v", snap, src.snap)
	}
}
