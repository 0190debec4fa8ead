package adapter

import (
	"context"
	"fmt"
	"io"
	"net"
)

// TCPTransport sends jobs to a network printer over a raw socket.
type TCPTransport struct {
	spec   TCP
	dialer net.Dialer
}

// NewTCPTransport creates a transport for spec.
func NewTCPTransport(spec TCP) *TCPTransport {
	return &TCPTransport{spec: spec}
}

// String returns the tcp:// address.
func (t *TCPTransport) String() string {
	return t.spec.String()
}

// Deliver connects, writes the whole job, half-closes the write side and
// waits for the printer to close the connection. Nothing is read back and
// no retry is attempted. Cancelling ctx closes the connection.
func (t *TCPTransport) Deliver(ctx context.Context, data []byte) error {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.spec.Address())
	if err != nil {
		return fmt.Errorf("tcp printer connection failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("tcp printer write failed: %w", contextErr(ctx, err))
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return fmt.Errorf("tcp printer close failed: %w", contextErr(ctx, err))
		}
	}

	// Wait for the printer to close its side
	if _, err := io.Copy(io.Discard, conn); err != nil {
		return fmt.Errorf("tcp printer connection failed: %w", contextErr(ctx, err))
	}
	return nil
}

// contextErr prefers the context error once ctx is done, since the socket
// error is then only a consequence of closing the connection.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
