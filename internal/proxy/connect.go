// Package proxy implements the HTTP CONNECT adapter the server applies
// before the handshake when it is configured to traverse an HTTP proxy
// (spec.md §4.4 step 1). It is a byte-stream adapter only: once the CONNECT
// response is consumed, the returned connection is indistinguishable from a
// direct TCP dial to gatewayAddr.
package proxy

import (
	"bytes"
	"fmt"
	"net"
)

// maxResponseBytes bounds the total bytes accumulated while waiting for the
// CONNECT response's terminator, guarding against a malicious or broken
// proxy that never terminates its headers.
const maxResponseBytes = 1 << 20 // 1,048,576

// perReadBytes bounds a single Read call's buffer size.
const perReadBytes = 1024

// DialConnect dials proxyAddr, issues a CONNECT request for target, and
// reads the proxy's response until it ends with a bare CRLFCRLF or LFLF
// terminator. On success it returns conn positioned immediately after the
// CONNECT response, ready for the caller to write MAGIC1 on it.
func DialConnect(proxyAddr, target string) (net.Conn, error) {
	conn, err := net.Dial("tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("proxy: dial %s: %w", proxyAddr, err)
	}

	request := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, target)
	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxy: write CONNECT request: %w", err)
	}

	if err := readUntilHeadersEnd(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func readUntilHeadersEnd(conn net.Conn) error {
	var accumulated []byte
	buf := make([]byte, perReadBytes)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			accumulated = append(accumulated, buf[:n]...)
			if len(accumulated) > maxResponseBytes {
				return fmt.Errorf("proxy: CONNECT response exceeded %d bytes without terminating", maxResponseBytes)
			}
			if hasHeaderTerminator(accumulated) {
				return nil
			}
		}
		if err != nil {
			return fmt.Errorf("proxy: read CONNECT response: %w", err)
		}
	}
}

func hasHeaderTerminator(b []byte) bool {
	return bytes.HasSuffix(b, []byte("\r\n\r\n")) || bytes.HasSuffix(b, []byte("\n\n"))
}
