package gateway

import (
	"crypto/rand"
	"io"
)

func cryptoRandRead(b []byte) (int, error) {
	return io.ReadFull(rand.Reader, b)
}
