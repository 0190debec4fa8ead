package adapter

import (
	"context"
	"fmt"
)

// Transport delivers one complete print job to a printer. Every call
// acquires and releases its own connection, device handle or temp file.
type Transport interface {
	// Deliver sends data as a single job
	Deliver(ctx context.Context, data []byte) error

	// String describes the destination for logs
	String() string
}

// New returns the transport for spec.
func New(spec Spec) (Transport, error) {
	switch s := spec.(type) {
	case TCP:
		return NewTCPTransport(s), nil
	case USB:
		return NewUSBTransport(s), nil
	case CUPS:
		return NewCUPSTransport(s), nil
	default:
		return nil, fmt.Errorf("unsupported printer interface %T", spec)
	}
}

// Open parses an interface specifier and returns its transport.
func Open(iface string) (Transport, error) {
	spec, err := ParseSpec(iface)
	if err != nil {
		return nil, err
	}
	return New(spec)
}
