package proxy

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

func startFakeProxy(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	return ln.Addr().String()
}

func TestDialConnectSuccess(t *testing.T) {
	addr := startFakeProxy(t, func(conn net.Conn) {
		defer conn.Close()
		reader := bufio.NewReader(conn)
		line, _ := reader.ReadString('\n')
		if !strings.HasPrefix(line, "CONNECT gateway.example:7000 HTTP/1.1") {
			t.Errorf("unexpected request line: %q", line)
		}
		conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
		buf := make([]byte, 5)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _ := conn.Read(buf)
		if string(buf[:n]) != "hello" {
			t.Errorf("got %q after CONNECT, want %q", buf[:n], "hello")
		}
	})

	conn, err := DialConnect(addr, "gateway.example:7000")
	if err != nil {
		t.Fatalf("DialConnect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write after CONNECT: %v", err)
	}
}

func TestDialConnectEarlyClose(t *testing.T) {
	addr := startFakeProxy(t, func(conn net.Conn) {
		conn.Close()
	})

	if _, err := DialConnect(addr, "gateway.example:7000"); err == nil {
		t.Fatal("expected error when proxy closes before terminating headers")
	}
}

func TestDialConnectOversizeResponse(t *testing.T) {
	addr := startFakeProxy(t, func(conn net.Conn) {
		defer conn.Close()
		chunk := make([]byte, 4096)
		for i := range chunk {
			chunk[i] = 'x'
		}
		for i := 0; i < 300; i++ {
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
	})

	if _, err := DialConnect(addr, "gateway.example:7000"); err == nil {
		t.Fatal("expected error for an oversize CONNECT response")
	}
}
