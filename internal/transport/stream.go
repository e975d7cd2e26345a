package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scansegment/internal/segment"
)

// DefaultChunkSize is the per-read buffer size of a stream transport. It
// should roughly match one telegram so a segment arrives in few reads without
// buffering large chunks.
const DefaultChunkSize = 1024

// StreamConfig configures a stream transport.
type StreamConfig struct {
	Extractor   Extractor
	Host        string
	Port        int
	ChunkSize   int           // per-read buffer size; DefaultChunkSize when 0
	ReadTimeout time.Duration // optional per-read deadline; 0 blocks until Close
}

// StreamTransport reads a connected byte stream, feeds an injected stream
// extractor, and returns fully framed telegrams one per Receive call. When a
// single read completes several telegrams the surplus is queued and handed
// out by subsequent calls without touching the socket.
type StreamTransport struct {
	rc          io.ReadCloser
	conn        net.Conn // nil when wrapping a plain reader
	extractor   Extractor
	pending     [][]byte
	buf         []byte
	readTimeout time.Duration
	count       atomic.Uint64
}

// NewStreamTransport connects to a sensor at host:port over TCP and returns
// the transport owning the connection.
func NewStreamTransport(cfg StreamConfig) (*StreamTransport, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("stream transport requires an extractor")
	}
	conn, err := net.Dial("tcp", net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	t := newReaderTransport(conn, cfg.Extractor, cfg.ChunkSize)
	t.conn = conn
	t.readTimeout = cfg.ReadTimeout
	return t, nil
}

// NewReaderTransport wraps any byte stream, typically a telegram dump file,
// in a stream transport. The reader is closed with the transport.
func NewReaderTransport(rc io.ReadCloser, extractor Extractor, chunkSize int) (*StreamTransport, error) {
	if extractor == nil {
		return nil, errors.New("stream transport requires an extractor")
	}
	return newReaderTransport(rc, extractor, chunkSize), nil
}

func newReaderTransport(rc io.ReadCloser, extractor Extractor, chunkSize int) *StreamTransport {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &StreamTransport{
		rc:        rc,
		extractor: extractor,
		buf:       make([]byte, chunkSize),
	}
}

// Receive returns the next fully framed telegram, reading from the stream
// until the extractor emits one. The stream ending before a telegram is
// complete reports segment.ErrTransportClosed.
func (t *StreamTransport) Receive() ([]byte, error) {
	for len(t.pending) == 0 {
		if t.conn != nil {
			deadline(t.conn, t.readTimeout)
		}
		n, err := t.rc.Read(t.buf)
		if n > 0 {
			t.pending = append(t.pending, t.extractor.Extract(t.buf[:n])...)
		}
		if err != nil {
			if len(t.pending) > 0 {
				break
			}
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: stream ended", segment.ErrTransportClosed)
			}
			return nil, wrapReadError(err)
		}
	}

	telegram := t.pending[0]
	t.pending = t.pending[1:]
	t.count.Add(1)
	return telegram, nil
}

// Count reports the number of telegrams handed out so far.
func (t *StreamTransport) Count() uint64 { return t.count.Load() }

// Close releases the underlying stream, failing any blocked Receive.
func (t *StreamTransport) Close() error { return t.rc.Close() }
