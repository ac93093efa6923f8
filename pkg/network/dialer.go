// pkg/network/dialer.go
package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultAddress is where the simulation listens in socket mode.
const DefaultAddress = "127.0.0.1:40000"

// Dialer establishes one transport session.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	return f(ctx)
}

// TCPDialer connects to a simulation listening on a TCP socket.
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

// Dial opens a TCP connection to d.Address.
func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	address := d.Address
	if address == "" {
		address = DefaultAddress
	}
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return conn, nil
}

func (d TCPDialer) String() string {
	if d.Address == "" {
		return DefaultAddress
	}
	return d.Address
}

// describe names a dialer for logs and events.
func describe(d Dialer) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", d)
}
