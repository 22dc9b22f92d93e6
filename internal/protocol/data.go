package protocol

import "encoding/binary"

// commandMagic prefixes the payload of a pusher-command datagram. Commands
// are addressed to pushers, not to us; the receiver drops them.
var commandMagic = [16]byte{
	0x40, 0x09, 0x2d, 0xa6, 0x15, 0xa5, 0xdd, 0xe5,
	0x6a, 0x9d, 0x4d, 0x5a, 0xcf, 0x09, 0xaf, 0x50,
}

// SequenceSize is the length of the sequence number prefixing every data
// datagram.
const SequenceSize = 4

// StripRecordSize returns the on-wire length of one strip record:
// a one-byte strip index followed by an RGB triplet per pixel.
func StripRecordSize(pixelsPerStrip int) int {
	return 1 + 3*pixelsPerStrip
}

// ReadSequence extracts the little-endian sequence number from the start of
// a data datagram. ok is false if the datagram is too short to carry one.
func ReadSequence(buf []byte) (seq uint32, ok bool) {
	if len(buf) < SequenceSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:SequenceSize]), true
}

// IsPusherCommand reports whether a datagram payload (the bytes after the
// sequence number) begins with the pusher-command magic.
func IsPusherCommand(payload []byte) bool {
	if len(payload) < len(commandMagic) {
		return false
	}
	return [16]byte(payload[:16]) == commandMagic
}

// AppendSequence appends a little-endian sequence number to dst. Used by
// the test pusher client to assemble data datagrams.
func AppendSequence(dst []byte, seq uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, seq)
}

// AppendStripRecord appends one strip record to dst. pixels must hold
// exactly 3 bytes (r, g, b) per pixel of the strip.
func AppendStripRecord(dst []byte, stripIndex uint8, pixels []byte) []byte {
	dst = append(dst, stripIndex)
	return append(dst, pixels...)
}
