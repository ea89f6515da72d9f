package wire

// Magic1Size is the length of the cleartext prefix the server sends on a
// freshly opened control connection, before any cryptography runs. Its sole
// purpose is to let the gateway reject Internet background-scanner traffic
// within a tight read deadline.
const Magic1Size = 17

// Magic2Size is the length of the known plaintext the server must produce
// under the freshly derived control cipher, proving possession of the
// pre-shared key.
const Magic2Size = 32

// Magic1 is sent in the clear as the first bytes on a new control
// connection.
var Magic1 = [Magic1Size]byte{
	0x73, 0x6d, 0x67, 0x6c, 0x72, 0x2d, 0x63, 0x74,
	0x72, 0x6c, 0x2d, 0x76, 0x31, 0x00, 0x9f, 0x3c, 0x21,
}

// Magic2 is the known plaintext encrypted under the negotiated control
// cipher to complete mutual authentication.
var Magic2 = [Magic2Size]byte{
	0x61, 0x75, 0x74, 0x68, 0x2d, 0x6f, 0x6b, 0x00,
	0xde, 0xad, 0xbe, 0xef, 0x13, 0x37, 0x90, 0x21,
	0xfa, 0xce, 0x0f, 0xf1, 0xce, 0xd0, 0x0d, 0x55,
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
}
