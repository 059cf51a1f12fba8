package p2p

import (
	"crypto/rand"

	"crn-node/internal/proto"
)

// Transaction ids use the printable non-space ASCII range.
const (
	txidFirst = '!'
	txidSpan  = '~' - '!' + 1
)

// recentTxIDs is how many of the latest issued ids are kept out of reuse.
const recentTxIDs = DefaultDedupCapacity

// NewTxID returns a random transaction id of two printable characters.
func NewTxID() string {
	var b [proto.TxIDLen]byte
	_, _ = rand.Read(b[:])
	for i := range b {
		b[i] = txidFirst + b[i]%txidSpan
	}
	return string(b[:])
}
