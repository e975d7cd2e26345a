package compact

import (
	"bytes"
	"encoding/binary"

	"github.com/banshee-data/scansegment/internal/monitoring"
)

// extractor states. The machine advances through them in order for each
// telegram and drops back to stateSearchStart on emit or resync.
type state int

const (
	stateSearchStart state = iota // scanning for the 0x02020202 magic
	stateReadHeader               // accumulating the 32-byte header
	stateReadModules              // accumulating declared module bytes
	stateReadCrc                  // accumulating the trailing CRC word
)

var startOfFrame = []byte{0x02, 0x02, 0x02, 0x02}

// StreamExtractor re-frames COMPACT telegrams from an unbounded byte stream.
//
// Bytes are accumulated in an internal buffer and walked by a flat state
// machine: search for the start-of-frame magic, read the fixed header, grow
// the required length module by module following each declared
// next_module_size, read the CRC word, emit. Partial feeds leave the machine
// in its current state with no data lost. A header that fails its sanity
// checks (wrong version, implausible first module size) causes a resync: the
// first byte of the bogus magic is discarded and scanning restarts, so the
// machine always makes progress.
//
// Emitted telegrams include the trailing CRC word; verification is the
// decoder's job, so a telegram with a corrupted checksum is still emitted.
type StreamExtractor struct {
	buf         []byte
	state       state
	payloadSize int // bytes of all modules seen or declared so far
	moduleStart int // offset of the module whose trailer is awaited
}

// NewStreamExtractor returns an extractor in its initial scanning state.
func NewStreamExtractor() *StreamExtractor {
	return &StreamExtractor{}
}

// Extract appends chunk to the internal buffer and returns all telegrams that
// became complete, in stream order. Feeding the same bytes one at a time or
// in one chunk yields the same telegrams.
func (e *StreamExtractor) Extract(chunk []byte) [][]byte {
	e.buf = append(e.buf, chunk...)

	var telegrams [][]byte
	for {
		var progress bool
		switch e.state {
		case stateSearchStart:
			progress = e.searchStart()
		case stateReadHeader:
			progress = e.readHeader()
		case stateReadModules:
			progress = e.readModules()
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

// resync discards the first byte of a matched magic that turned out to be
// bogus and restarts scanning just after it.
func (e *StreamExtractor) resync(reason string) {
	monitoring.Logf("compact extractor resync: %s", reason)
	e.buf = e.buf[1:]
	e.state = stateSearchStart
}

// searchStart shifts through the buffer looking for the start-of-frame magic,
// discarding everything before it.
func (e *StreamExtractor) searchStart() bool {
	idx := bytes.Index(e.buf, startOfFrame)
	if idx == -1 {
		// Keep the last few bytes in case the magic straddles chunks.
		if len(e.buf) > len(startOfFrame)-1 {
			e.buf = e.buf[len(e.buf)-(len(startOfFrame)-1):]
		}
		return false
	}
	e.buf = e.buf[idx:]
	e.state = stateReadHeader
	return true
}

// readHeader waits for the fixed-size prefix through size_module_0 and
// records the declared first-module size.
func (e *StreamExtractor) readHeader() bool {
	if len(e.buf) < HeaderSize {
		return false
	}
	if version := binary.LittleEndian.Uint32(e.buf[versionOffset:]); version != Version {
		e.resync("header version is not 4")
		return true
	}
	firstModuleSize := binary.LittleEndian.Uint32(e.buf[firstModuleSizeOffset:])
	if firstModuleSize == 0 || firstModuleSize > maxModuleSize {
		e.resync("implausible first module size")
		return true
	}
	e.payloadSize = int(firstModuleSize)
	e.moduleStart = HeaderSize
	e.state = stateReadModules
	return true
}

// readModules waits for the current module to be complete, reads the
// next_module_size from its metadata trailer, and either extends the required
// length or moves on to the CRC.
func (e *StreamExtractor) readModules() bool {
	if len(e.buf) < HeaderSize+e.payloadSize {
		return false
	}

	// next_module_size sits behind the per-line metadata arrays, so the line
	// count must be read first.
	linesPos := e.moduleStart + linesInModuleOffset
	if len(e.buf) < linesPos+4 {
		return false
	}
	lines := binary.LittleEndian.Uint32(e.buf[linesPos:])
	nextSizePos := e.moduleStart + metaFixedSize + int(lines)*metaPerLineSize + 4
	if nextSizePos+4 > HeaderSize+e.payloadSize {
		e.resync("module metadata overruns declared module size")
		return true
	}
	if len(e.buf) < nextSizePos+4 {
		return false
	}

	nextModuleSize := binary.LittleEndian.Uint32(e.buf[nextSizePos:])
	if nextModuleSize == 0 {
		e.state = stateReadCrc
		return true
	}
	if nextModuleSize > maxModuleSize {
		e.resync("implausible next module size")
		return true
	}
	e.moduleStart = HeaderSize + e.payloadSize
	e.payloadSize += int(nextModuleSize)
	return true
}

// readCrc waits for the CRC word and emits the whole telegram, retaining any
// trailing buffered bytes for the next one.
func (e *StreamExtractor) readCrc() ([]byte, bool) {
	total := HeaderSize + e.payloadSize + CrcSize
	if len(e.buf) < total {
		return nil, false
	}
	telegram := append([]byte(nil), e.buf[:total]...)
	e.buf = e.buf[total:]
	e.state = stateSearchStart
	return telegram, true
}
