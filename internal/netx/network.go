package netx

import "net"

// Network opens the single datagram socket a node reads and writes.
type Network interface {
	ListenPacket(host string, port int) (net.PacketConn, error)
}
