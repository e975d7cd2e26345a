package msgpack

import (
	"encoding/binary"

	"github.com/banshee-data/scansegment/internal/monitoring"
)

// Stream framing: a 4-byte big-endian length prefix, the encoded body, then
// the 4-byte CRC word. There is no magic to scan for, so an implausible
// length is the only resynchronisation signal.
const (
	lengthPrefixSize = 4
	crcSize          = 4

	// Lengths above this are treated as stream corruption.
	maxBodySize = 16 << 20
)

type state int

const (
	stateReadLength state = iota // accumulating the length prefix
	stateReadBody                // accumulating the declared body bytes
	stateReadCrc                 // accumulating the trailing CRC word
)

// StreamExtractor re-frames MSGPACK telegrams from an unbounded byte stream.
//
// The machine reads a length prefix, then the body, then the CRC, and emits
// body plus CRC (the decoder's input) with the prefix stripped. A zero or
// oversized length discards a single byte and restarts the length read, so a
// corrupted prefix costs at most one byte per step and the machine always
// makes progress. Partial feeds leave the state unchanged with no data lost.
type StreamExtractor struct {
	buf      []byte
	state    state
	bodySize int
}

// NewStreamExtractor returns an extractor waiting for a length prefix.
func NewStreamExtractor() *StreamExtractor {
	return &StreamExtractor{}
}

// Extract appends chunk to the internal buffer and returns all telegrams that
// became complete, in stream order. Each returned blob is the encoded body
// followed by its CRC word. Feeding the same bytes one at a time or in one
// chunk yields the same telegrams.
func (e *StreamExtractor) Extract(chunk []byte) [][]byte {
	e.buf = append(e.buf, chunk...)

	var telegrams [][]byte
	for {
		var progress bool
		switch e.state {
		case stateReadLength:
			progress = e.readLength()
		case stateReadBody:
			progress = e.readBody()
		case stateReadCrc:
			var telegram []byte
			telegram, progress = e.readCrc()
			if telegram != nil {
				telegrams = append(telegrams, telegram)
			}
		}
		if !progress {
			return telegrams
		}
	}
}

// readLength waits for the 4-byte big-endian length prefix and validates it.
func (e *StreamExtractor) readLength() bool {
	if len(e.buf) < lengthPrefixSize {
		return false
	}
	size := binary.BigEndian.Uint32(e.buf)
	if size == 0 || size > maxBodySize {
		// Resync: discard one byte and retry the length read.
		monitoring.Logf("msgpack extractor resync: implausible body length %d", size)
		e.buf = e.buf[1:]
		return true
	}
	e.bodySize = int(size)
	e.state = stateReadBody
	return true
}

func (e *StreamExtractor) readBody() bool {
	if len(e.buf) < lengthPrefixSize+e.bodySize {
		return false
	}
	e.state = stateReadCrc
	return true
}

// readCrc waits for the CRC word and emits body plus CRC, retaining any
// trailing buffered bytes for the next telegram.
func (e *StreamExtractor) readCrc() ([]byte, bool) {
	total := lengthPrefixSize + e.bodySize + crcSize
	if len(e.buf) < total {
		return nil, false
	}
	telegram := append([]byte(nil), e.buf[lengthPrefixSize:total]...)
	e.buf = e.buf[total:]
	e.state = stateReadLength
	return telegram, true
}
