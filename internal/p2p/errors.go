package p2p

import "errors"

var (
	// ErrAddress reports a peer name with no usable address.
	ErrAddress = errors.New("p2p: unknown or unresolvable address")
	// ErrNetwork wraps socket failures.
	ErrNetwork = errors.New("p2p: network failure")
	// ErrTimeout is returned once a request has used its retransmission budget.
	ErrTimeout = errors.New("p2p: request timed out")
	// ErrConfiguration is returned by New before any socket is opened.
	ErrConfiguration = errors.New("p2p: invalid configuration")
	// ErrStopped is returned by calls made after Stop.
	ErrStopped = errors.New("p2p: node stopped")
)
