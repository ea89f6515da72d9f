package wire

import "testing"

func TestPortRoundTrip(t *testing.T) {
	cases := []Port{
		{Number: 0, Protocol: ProtocolTCP},
		{Number: 1, Protocol: ProtocolUDP},
		{Number: 9000, Protocol: ProtocolTCP},
		{Number: 65535, Protocol: ProtocolUDP},
	}
	for _, want := range cases {
		b := want.Bytes()
		if len(b) != PortSize {
			t.Fatalf("Bytes() length = %d, want %d", len(b), PortSize)
		}
		got, err := PortFromBytes(b[:])
		if err != nil {
			t.Fatalf("PortFromBytes(%v) returned error: %v", b, err)
		}
		if got != want {
			t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestPortFromBytesRejectsBadLength(t *testing.T) {
	if _, err := PortFromBytes([]byte{0, 1}); err == nil {
		t.Error("expected error for short input")
	}
	if _, err := PortFromBytes([]byte{0, 1, 2, 3}); err == nil {
		t.Error("expected error for long input")
	}
}

func TestPortFromBytesRejectsBadProtocol(t *testing.T) {
	for _, tag := range []byte{2, 3, 255} {
		if _, err := PortFromBytes([]byte{0x23, 0x28, tag}); err == nil {
			t.Errorf("expected error for protocol tag %d", tag)
		}
	}
}

func TestProtocolString(t *testing.T) {
	if ProtocolTCP.String() != "TCP" {
		t.Errorf("ProtocolTCP.String() = %q", ProtocolTCP.String())
	}
	if ProtocolUDP.String() != "UDP" {
		t.Errorf("ProtocolUDP.String() = %q", ProtocolUDP.String())
	}
}
