// Package pump implements the data-plane byte-pump: once a client
// connection and its matched rendezvous connection are paired, the two
// sockets are blindly copied end to end with no framing, no encryption, and
// no half-close coordination (spec.md §4.5 "Byte-pump", §9 "Bidirectional
// shutdown").
package pump

import (
	"io"
	"sync"
)

// bufferSize is the copy buffer used in each direction.
const bufferSize = 64 * 1024

// Run copies a<->b until both directions have hit EOF or an error. Each
// direction runs independently: an EOF on one does not interrupt the
// other, matching the source's "no explicit half-close" behavior.
func Run(a, b io.ReadWriter) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		copyDirection(a, b)
	}()
	go func() {
		defer wg.Done()
		copyDirection(b, a)
	}()
	wg.Wait()
}

func copyDirection(dst io.Writer, src io.Reader) {
	buf := make([]byte, bufferSize)
	_, _ = io.CopyBuffer(dst, src, buf)
}
