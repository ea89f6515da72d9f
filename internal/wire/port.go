// Package wire defines the on-the-wire data model shared by the gateway and
// the server: port records and the fixed magic prefixes used during the
// handshake.
package wire

import "fmt"

// Protocol is the transport tag carried alongside a port number in the
// manifest. Only TCP and UDP are valid; any other byte value is a protocol
// error.
type Protocol byte

const (
	ProtocolUDP Protocol = 0
	ProtocolTCP Protocol = 1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return fmt.Sprintf("Protocol(%d)", byte(p))
	}
}

// PortSize is the fixed serialized length of a Port record: a big-endian
// port number followed by a one-byte protocol tag.
const PortSize = 3

// Port is a (port number, protocol) pair, as advertised by the server's
// manifest.
type Port struct {
	Number   uint16
	Protocol Protocol
}

// Bytes serializes p into its 3-byte wire form.
func (p Port) Bytes() [PortSize]byte {
	return [PortSize]byte{byte(p.Number >> 8), byte(p.Number), byte(p.Protocol)}
}

// PortFromBytes parses a single 3-byte port record. It rejects any protocol
// tag other than 0 (UDP) or 1 (TCP).
func PortFromBytes(b []byte) (Port, error) {
	if len(b) != PortSize {
		return Port{}, fmt.Errorf("wire: port record must be %d bytes, got %d", PortSize, len(b))
	}
	proto := Protocol(b[2])
	if proto != ProtocolUDP && proto != ProtocolTCP {
		return Port{}, fmt.Errorf("wire: invalid protocol tag %d", b[2])
	}
	return Port{
		Number:   uint16(b[0])<<8 | uint16(b[1]),
		Protocol: proto,
	}, nil
}
