package netx

import (
	"context"
	"net"
	"strconv"
	"syscall"
)

// DefaultReadBuffer is the socket receive buffer requested for node
// sockets. Datagrams queue there while handlers are busy.
const DefaultReadBuffer = 1 << 20

type udpNetwork struct {
	readBuffer int
}

func NewUDPNetwork() Network {
	return &udpNetwork{readBuffer: DefaultReadBuffer}
}

// NewUDPNetworkWithBuffer lets callers pick the receive buffer size; zero
// keeps the OS default.
func NewUDPNetworkWithBuffer(bytes int) Network {
	return &udpNetwork{readBuffer: bytes}
}

func (u *udpNetwork) ListenPacket(host string, port int) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if u.readBuffer <= 0 {
				return nil
			}
			return c.Control(func(fd uintptr) {
				// A refused size is not fatal; the kernel default still works.
				_ = setReadBuffer(fd, u.readBuffer)
			})
		},
	}
	return lc.ListenPacket(context.Background(), "udp", net.JoinHostPort(host, strconv.Itoa(port)))
}
