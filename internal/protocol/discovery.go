// Package protocol defines the PixelPusher wire formats: the universal
// discovery packet broadcast on the discovery port and the pixel data
// datagrams received on the listen port.
//
// All multi-byte fields are serialized little-endian regardless of host,
// except the header's IP address which travels in network byte order.
// Structures are packed with no padding.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// DiscoveryPort is the UDP port the beacon broadcasts to.
	DiscoveryPort = 7331

	// ListenPort is the UDP port pushers send pixel data to.
	ListenPort = 5078

	// MaxUDPPacketSize is the largest datagram we accept. Controllers
	// usually emit non-fragmenting packets around 1460 bytes, but the
	// protocol allows anything up to the UDP maximum.
	MaxUDPPacketSize = 65507

	// MinUpdatePeriodUSec is the fastest update period we ever advertise.
	// At 60Hz with 9 packets per frame there is no need for more.
	MinUpdatePeriodUSec = 16666 / 9
)

// Device types of the universal discovery protocol.
const (
	DeviceTypeEtherDream  = 0
	DeviceTypeLumiaBridge = 1
	DeviceTypePixelPusher = 2
)

// Identity values this implementation reports in the discovery header.
const (
	VendorID   = 3
	SWRevision = 122
	LinkSpeed  = 10_000_000 // bits per second
)

// SFlagLogarithmic marks a strip whose luminance is gamma corrected.
const SFlagLogarithmic = 0x01

const (
	headerSize    = 24
	baseFixedSize = 30
	extSize       = 12
)

// DiscoveryPacketHeader is the fixed 24-byte prefix of every discovery
// packet.
type DiscoveryPacketHeader struct {
	MACAddress      [6]byte
	IPAddress       [4]byte // network byte order
	DeviceType      uint8
	ProtocolVersion uint8
	VendorID        uint16
	ProductID       uint16
	HWRevision      uint16
	SWRevision      uint16
	LinkSpeed       uint32 // bits per second
}

// PixelPusherBase is the variable-length pusher description following the
// header. StripFlags carries one byte per attached strip.
type PixelPusherBase struct {
	StripsAttached     uint8
	MaxStripsPerPacket uint8
	PixelsPerStrip     uint16
	UpdatePeriod       uint32 // microseconds
	PowerTotal         uint32
	DeltaSequence      uint32 // sequence numbers missed since the last beacon
	ControllerOrdinal  int32
	GroupOrdinal       int32
	ArtnetUniverse     uint16
	ArtnetChannel      uint16
	MyPort             uint16
	StripFlags         []byte
}

// PixelPusherExt is the fixed 12-byte tail of the pusher description.
type PixelPusherExt struct {
	PusherFlags uint32
	Segments    uint32
	PowerDomain uint32
}

// Container bundles the pusher base and ext, the mutable half of the
// discovery packet.
type Container struct {
	Base PixelPusherBase
	Ext  PixelPusherExt
}

// DiscoverySize returns the total on-wire size of a discovery packet for
// the given number of attached strips.
func DiscoverySize(stripsAttached int) int {
	return headerSize + baseFixedSize + stripsAttached + extSize
}

// AppendTo serializes the header into dst and returns the extended slice.
func (h *DiscoveryPacketHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, h.MACAddress[:]...)
	dst = append(dst, h.IPAddress[:]...)
	dst = append(dst, h.DeviceType, h.ProtocolVersion)
	dst = binary.LittleEndian.AppendUint16(dst, h.VendorID)
	dst = binary.LittleEndian.AppendUint16(dst, h.ProductID)
	dst = binary.LittleEndian.AppendUint16(dst, h.HWRevision)
	dst = binary.LittleEndian.AppendUint16(dst, h.SWRevision)
	dst = binary.LittleEndian.AppendUint32(dst, h.LinkSpeed)
	return dst
}

// AppendTo serializes the base, including the per-strip flags, into dst.
func (b *PixelPusherBase) AppendTo(dst []byte) []byte {
	dst = append(dst, b.StripsAttached, b.MaxStripsPerPacket)
	dst = binary.LittleEndian.AppendUint16(dst, b.PixelsPerStrip)
	dst = binary.LittleEndian.AppendUint32(dst, b.UpdatePeriod)
	dst = binary.LittleEndian.AppendUint32(dst, b.PowerTotal)
	dst = binary.LittleEndian.AppendUint32(dst, b.DeltaSequence)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(b.ControllerOrdinal))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(b.GroupOrdinal))
	dst = binary.LittleEndian.AppendUint16(dst, b.ArtnetUniverse)
	dst = binary.LittleEndian.AppendUint16(dst, b.ArtnetChannel)
	dst = binary.LittleEndian.AppendUint16(dst, b.MyPort)
	dst = append(dst, b.StripFlags...)
	return dst
}

// AppendTo serializes the ext into dst.
func (e *PixelPusherExt) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, e.PusherFlags)
	dst = binary.LittleEndian.AppendUint32(dst, e.Segments)
	dst = binary.LittleEndian.AppendUint32(dst, e.PowerDomain)
	return dst
}

// AppendTo serializes base followed by ext into dst.
func (c *Container) AppendTo(dst []byte) []byte {
	dst = c.Base.AppendTo(dst)
	dst = c.Ext.AppendTo(dst)
	return dst
}

// ParseDiscovery decodes a full discovery packet. The strip flag count is
// taken from the strips_attached field inside the packet itself.
func ParseDiscovery(buf []byte) (DiscoveryPacketHeader, Container, error) {
	var h DiscoveryPacketHeader
	var c Container

	if len(buf) < headerSize+baseFixedSize+extSize {
		return h, c, fmt.Errorf("discovery packet too short: %d bytes", len(buf))
	}

	copy(h.MACAddress[:], buf[0:6])
	copy(h.IPAddress[:], buf[6:10])
	h.DeviceType = buf[10]
	h.ProtocolVersion = buf[11]
	h.VendorID = binary.LittleEndian.Uint16(buf[12:14])
	h.ProductID = binary.LittleEndian.Uint16(buf[14:16])
	h.HWRevision = binary.LittleEndian.Uint16(buf[16:18])
	h.SWRevision = binary.LittleEndian.Uint16(buf[18:20])
	h.LinkSpeed = binary.LittleEndian.Uint32(buf[20:24])

	base := buf[headerSize:]
	c.Base.StripsAttached = base[0]
	c.Base.MaxStripsPerPacket = base[1]
	c.Base.PixelsPerStrip = binary.LittleEndian.Uint16(base[2:4])
	c.Base.UpdatePeriod = binary.LittleEndian.Uint32(base[4:8])
	c.Base.PowerTotal = binary.LittleEndian.Uint32(base[8:12])
	c.Base.DeltaSequence = binary.LittleEndian.Uint32(base[12:16])
	c.Base.ControllerOrdinal = int32(binary.LittleEndian.Uint32(base[16:20]))
	c.Base.GroupOrdinal = int32(binary.LittleEndian.Uint32(base[20:24]))
	c.Base.ArtnetUniverse = binary.LittleEndian.Uint16(base[24:26])
	c.Base.ArtnetChannel = binary.LittleEndian.Uint16(base[26:28])
	c.Base.MyPort = binary.LittleEndian.Uint16(base[28:30])

	strips := int(c.Base.StripsAttached)
	if len(buf) != DiscoverySize(strips) {
		return h, c, fmt.Errorf("discovery packet size %d, want %d for %d strips",
			len(buf), DiscoverySize(strips), strips)
	}

	c.Base.StripFlags = make([]byte, strips)
	copy(c.Base.StripFlags, base[baseFixedSize:baseFixedSize+strips])

	ext := base[baseFixedSize+strips:]
	c.Ext.PusherFlags = binary.LittleEndian.Uint32(ext[0:4])
	c.Ext.Segments = binary.LittleEndian.Uint32(ext[4:8])
	c.Ext.PowerDomain = binary.LittleEndian.Uint32(ext[8:12])

	return h, c, nil
}
