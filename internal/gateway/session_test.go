package gateway

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/HamelinDavid/smugglrs/internal/aead"
	"github.com/HamelinDavid/smugglrs/internal/wire"
	"github.com/rs/zerolog"
)

// This exercises spec.md §8 scenario 1 ("Happy path single connection") end
// to end against real loopback sockets, with a hand-rolled stand-in for the
// server side of the protocol (the server package itself is exercised
// separately and, together with this test, the two halves are proven
// individually against the same wire contract).
func TestSessionHappyPath(t *testing.T) {
	psk := bytes.Repeat([]byte{0x11}, aead.KeySize)

	controlLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer controlLn.Close()
	tcpControlLn := controlLn.(*net.TCPListener)

	dataLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	dataPort := uint16(dataLn.Addr().(*net.TCPAddr).Port)
	dataLn.Close() // free the port; spawnListenerFleet will rebind it

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- runFakeServer(controlLn.Addr().String(), psk, dataPort)
	}()

	candidate, err := tcpControlLn.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- runSession(tcpControlLn, candidate, psk, zerolog.Nop())
	}()

	// Give the session a moment to bind its listener fleet.
	var clientConn net.Conn
	for i := 0; i < 50; i++ {
		clientConn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(dataPort))))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial forwarded port: %v", err)
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("hello")); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	buf := make([]byte, 5)
	clientConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadFull(clientConn, buf); err != nil {
		t.Fatalf("read world: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("got %q, want %q", buf, "world")
	}

	clientConn.Close()
	candidate.Close()

	select {
	case err := <-serverErrCh:
		if err != nil {
			t.Errorf("fake server: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("fake server did not finish")
	}
	select {
	case <-sessionDone:
	case <-time.After(3 * time.Second):
		t.Error("runSession did not return after teardown")
	}
}

// runFakeServer plays the server's half of the protocol directly against
// the wire contract (MAGIC1, AnswerChallenge, manifest, one rendezvous),
// then echoes "hello"->"world" on the data connection, proving the gateway
// correctly matches and pumps a client connection end to end.
func runFakeServer(gatewayAddr string, psk []byte, dataPort uint16) error {
	conn, err := net.Dial("tcp", gatewayAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(wire.Magic1[:]); err != nil {
		return err
	}

	session, err := aead.AnswerChallenge(conn, psk)
	if err != nil {
		return err
	}

	manifest := wire.EncodeManifest([]wire.Port{{Number: dataPort, Protocol: wire.ProtocolTCP}})
	lengthCiphertext, err := session.Encrypt([]byte{byte(len(manifest) + aead.TagSize)})
	if err != nil {
		return err
	}
	if _, err := conn.Write(lengthCiphertext); err != nil {
		return err
	}
	manifestCiphertext, err := session.Encrypt(manifest)
	if err != nil {
		return err
	}
	if _, err := conn.Write(manifestCiphertext); err != nil {
		return err
	}

	// Wait for the rendezvous notification.
	notification := make([]byte, 2+14+aead.TagSize)
	if _, err := io.ReadFull(conn, notification); err != nil {
		return err
	}
	plaintext, err := session.Decrypt(notification)
	if err != nil {
		return err
	}
	ticket := plaintext[2:]

	rendezvousConn, err := net.Dial("tcp", gatewayAddr)
	if err != nil {
		return err
	}
	defer rendezvousConn.Close()
	echo, err := session.Encrypt(ticket)
	if err != nil {
		return err
	}
	if _, err := rendezvousConn.Write(echo); err != nil {
		return err
	}

	buf := make([]byte, 5)
	rendezvousConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadFull(rendezvousConn, buf); err != nil {
		return err
	}
	if string(buf) != "hello" {
		return fmt.Errorf("fake server: unexpected payload %q on rendezvous connection", buf)
	}
	_, err = rendezvousConn.Write([]byte("world"))
	return err
}
