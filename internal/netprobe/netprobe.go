// Package netprobe resolves the MAC and IPv4 address advertised in the
// discovery header.
package netprobe

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Probe resolves the MAC and IPv4 address of the named interface. With an
// empty name it walks the interfaces and picks the first one that is up,
// not loopback, and carries both a hardware address and an IPv4 address.
// The returned IP is in network byte order, matching the wire layout.
func Probe(ifaceName string) (mac [6]byte, ip [4]byte, err error) {
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return mac, ip, fmt.Errorf("finding interface %s: %w", ifaceName, err)
		}
		return probeInterface(iface)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return mac, ip, fmt.Errorf("listing interfaces: %w", err)
	}
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		if mac, ip, err = probeInterface(iface); err == nil {
			return mac, ip, nil
		}
	}
	return mac, ip, fmt.Errorf("no usable interface with a MAC and IPv4 address")
}

func probeInterface(iface *net.Interface) (mac [6]byte, ip [4]byte, err error) {
	if len(iface.HardwareAddr) < len(mac) {
		return mac, ip, fmt.Errorf("interface %s has no hardware address", iface.Name)
	}
	copy(mac[:], iface.HardwareAddr)

	addrs, err := iface.Addrs()
	if err != nil {
		return mac, ip, fmt.Errorf("listing addresses of %s: %w", iface.Name, err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			copy(ip[:], v4)
			return mac, ip, nil
		}
	}
	return mac, ip, fmt.Errorf("interface %s has no IPv4 address", iface.Name)
}

// ProbeRetry calls Probe up to attempts times, sleeping delay between
// failures. The network may not be up yet during early boot.
func ProbeRetry(ifaceName string, attempts int, delay time.Duration, log zerolog.Logger) (mac [6]byte, ip [4]byte, err error) {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		mac, ip, err = Probe(ifaceName)
		if err == nil {
			log.Info().
				Str("interface", ifaceName).
				Str("mac", net.HardwareAddr(mac[:]).String()).
				Str("ip", net.IP(ip[:]).String()).
				Msg("Network interface detected")
			return mac, ip, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Network probe failed, retrying")
	}
	return mac, ip, fmt.Errorf("probing network after %d attempts: %w", attempts, err)
}
