package aead

// ConstantTimeEqual reports whether x and y hold the same bytes, examining
// every byte up to min(len(x), len(y)) regardless of where a mismatch
// occurs, and folding a length mismatch into the same accumulator so that
// no early return leaks timing information to a caller comparing a ticket
// or a MAGIC2 plaintext against attacker-controlled input.
func ConstantTimeEqual(x, y []byte) bool {
	var acc byte
	if len(x) != len(y) {
		acc = 1
	}
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		acc |= x[i] ^ y[i]
	}
	return acc == 0
}
