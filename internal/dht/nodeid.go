package dht

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const HashIDBytes = 32

// HashID is a 256-bit big-endian unsigned integer: SHA-256 of a node name
// or key.
type HashID [HashIDBytes]byte

// HashOf hashes the UTF-8 bytes of s.
func HashOf(s string) HashID {
	return HashID(sha256.Sum256([]byte(s)))
}

func ParseHashIDHex(s string) (HashID, error) {
	var id HashID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != HashIDBytes {
		return id, fmt.Errorf("hash id must be %d bytes, got %d", HashIDBytes, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id HashID) Hex() string { return hex.EncodeToString(id[:]) }

// XOR distance: d = a ^ b
func Xor(a, b HashID) (out HashID) {
	for i := 0; i < HashIDBytes; i++ {
		out[i] = a[i] ^ b[i]
	}
	return
}

// Distance is the XOR metric between two ids.
func Distance(a, b HashID) HashID { return Xor(a, b) }

// DistanceLess compares two distances as big-endian integers.
func DistanceLess(a, b HashID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// MatchingBits returns how many leading bits a and b share (256 if equal).
func MatchingBits(a, b HashID) int {
	d := Xor(a, b)
	for byteIdx := 0; byteIdx < HashIDBytes; byteIdx++ {
		x := d[byteIdx]
		if x == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if x&(1<<(7-bit)) != 0 {
				return byteIdx*8 + bit
			}
		}
	}
	return HashIDBytes * 8
}
