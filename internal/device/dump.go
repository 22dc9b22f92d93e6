package device

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// FrameRecord is one committed frame in a dump stream.
type FrameRecord struct {
	Frame  uint64 `msgpack:"frame"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Pixels []byte `msgpack:"pixels"` // rgb triplets, row-major
}

// DumpOutput is a MemoryOutput that appends every committed frame to a
// writer as a msgpack record. Partial updates drawn straight to the
// on-screen canvas are not recorded; only vsync commits are.
type DumpOutput struct {
	*MemoryOutput
	enc   *msgpack.Encoder
	frame uint64
	log   zerolog.Logger
}

// NewDumpOutput creates a frame-dumping display of the given geometry
// writing to w.
func NewDumpOutput(strips, pixelsPerStrip int, w io.Writer, log zerolog.Logger) *DumpOutput {
	return &DumpOutput{
		MemoryOutput: NewMemoryOutput(strips, pixelsPerStrip),
		enc:          msgpack.NewEncoder(w),
		log:          log,
	}
}

// SwapOnVSync commits the back buffer and records it. Write errors are
// logged and the display keeps running.
func (d *DumpOutput) SwapOnVSync(back Canvas) Canvas {
	prev := d.MemoryOutput.SwapOnVSync(back)
	if back == nil {
		return prev
	}

	committed := back.(*MemoryCanvas)
	d.frame++
	rec := FrameRecord{
		Frame:  d.frame,
		Width:  committed.width,
		Height: committed.height,
		Pixels: committed.pix,
	}
	if err := d.enc.Encode(&rec); err != nil {
		d.log.Error().Err(err).Uint64("frame", d.frame).Msg("Failed to dump frame")
	}
	return prev
}
