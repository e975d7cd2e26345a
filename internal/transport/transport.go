// Package transport delivers telegram byte-blobs to the receiver layer.
//
// Two adapter kinds exist: the datagram adapter returns one telegram per
// receive call with no framing work, and the stream adapter reads a
// connected byte stream through an injected stream extractor that re-frames
// telegrams. Each adapter owns its underlying socket; closing the adapter is
// the only way to cancel a blocked receive, which then fails with
// segment.ErrTransportClosed.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/scansegment/internal/segment"
)

// Transport yields whole telegram byte-blobs one per Receive call.
type Transport interface {
	// Receive blocks until the next telegram is available or the transport
	// ends, in which case it reports segment.ErrTransportClosed.
	Receive() ([]byte, error)
	// Close releases the underlying socket. A blocked Receive fails.
	Close() error
}

// Extractor re-frames telegrams from a byte stream. Both stream extractor
// implementations satisfy it.
type Extractor interface {
	Extract(chunk []byte) [][]byte
}

// wrapReadError maps socket-level failures onto the transport error kind.
func wrapReadError(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", segment.ErrTransportClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: read timed out: %v", segment.ErrTransportClosed, err)
	}
	return fmt.Errorf("%w: %v", segment.ErrTransportClosed, err)
}

// deadline applies an optional read timeout to a socket. Zero leaves the
// socket without a deadline; cancellation then only comes from Close.
func deadline(conn net.Conn, timeout time.Duration) {
	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}
}
