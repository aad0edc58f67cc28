// Package wol implements the Wake-on-LAN Emitter (spec.md §4.10): magic
// packet construction and UDP broadcast. Grounded directly in the standard
// library's net package — no example repo in the corpus implements
// Wake-on-LAN, and the protocol is a fixed 102-byte datagram over a raw
// UDP socket with SO_BROADCAST, which net.ListenConfig + net.PacketConn already
// expose without needing a third-party socket library.
package wol

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"syscall"
)

const (
	macLen       = 6
	repeatCount  = 16
	packetLen    = macLen + repeatCount*macLen
	wolPort      = 9
)

// ParseMAC normalizes a MAC address string (colon- or hyphen-delimited)
// into its 6 raw bytes.
func ParseMAC(mac string) ([]byte, error) {
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(mac)
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	if len(b) != macLen {
		return nil, fmt.Errorf("invalid MAC address %q: expected %d bytes, got %d", mac, macLen, len(b))
	}
	return b, nil
}

// BuildPacket composes the 102-byte magic packet: six 0xFF bytes followed
// by the MAC repeated 16 times (spec.md §4.10, §8 invariant 8).
func BuildPacket(mac []byte) ([]byte, error) {
	if len(mac) != macLen {
		return nil, fmt.Errorf("mac must be %d bytes, got %d", macLen, len(mac))
	}
	packet := make([]byte, 0, packetLen)
	for i := 0; i < macLen; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < repeatCount; i++ {
		packet = append(packet, mac...)
	}
	return packet, nil
}

// broadcastListenConfig enables SO_BROADCAST on the underlying socket
// before it binds, as spec.md §4.10 requires explicitly.
var broadcastListenConfig = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	},
}

// Send composes and broadcasts a magic packet for macAddr to
// broadcastAddr:9 over UDP with the SO_BROADCAST socket option enabled.
func Send(macAddr, broadcastAddr string) error {
	mac, err := ParseMAC(macAddr)
	if err != nil {
		return err
	}
	packet, err := BuildPacket(mac)
	if err != nil {
		return err
	}

	ip := net.ParseIP(broadcastAddr)
	if ip == nil {
		return fmt.Errorf("invalid broadcast address %q", broadcastAddr)
	}

	pc, err := broadcastListenConfig.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return fmt.Errorf("opening wake-on-lan socket: %w", err)
	}
	defer pc.Close()

	dst := &net.UDPAddr{IP: ip, Port: wolPort}
	if _, err := pc.WriteTo(packet, dst); err != nil {
		return fmt.Errorf("sending wake-on-lan packet: %w", err)
	}
	return nil
}
