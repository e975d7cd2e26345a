// Package compact decodes COMPACT (version 4) scan-segment telegrams and
// re-frames them from byte streams.
//
// Telegram layout:
//
//	| Header | Module 0 | Module 1 | ... | CRC |
//	0       32          X                      end
//
// The 32-byte header declares the size of the first module; each module
// declares the size of the next in its metadata, with 0 marking the last. The
// trailing CRC word covers every byte before it.
package compact

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/banshee-data/scansegment/internal/segment"
)

// Fixed layout constants of the COMPACT format. All multi-byte fields are
// little-endian.
const (
	StartOfFrame = 0x02020202 // four STX bytes
	Version      = 4

	HeaderSize = 32 // through size_module_0
	CrcSize    = 4

	// Header field offsets.
	commandIDOffset         = 4
	telegramCounterOffset   = 8
	timestampTransmitOffset = 16
	versionOffset           = 24
	firstModuleSizeOffset   = 28

	// Module metadata offsets relative to the module start. The fixed part
	// ends at the per-line arrays; each line adds 28 bytes (two u64
	// timestamps, three f32 angles) before the trailer.
	linesInModuleOffset = 12
	metaFixedSize       = 24
	metaPerLineSize     = 28
	metaTrailerSize     = 12 // scaling factor, next_module_size, four flag bytes

	// Upper bound applied to declared module sizes before trusting them.
	maxModuleSize = 16 << 20
)

// moduleMetaSize returns the byte length of a module's metadata block for the
// given line count.
func moduleMetaSize(lines uint32) int {
	return metaFixedSize + int(lines)*metaPerLineSize + metaTrailerSize
}

// Decode parses one complete COMPACT telegram, including the trailing CRC
// word, into a Segment. The input must be exactly one telegram; the declared
// module sizes must account for every byte between header and CRC.
func Decode(data []byte) (*segment.Segment, error) {
	if len(data) < HeaderSize+CrcSize {
		return nil, fmt.Errorf("%w: %d bytes is below the minimal telegram size", segment.ErrMalformedTelegram, len(data))
	}

	// The CRC covers everything up to but excluding its own four bytes. It is
	// verified before any field so that a corrupted byte anywhere in the
	// covered region reports as a checksum failure.
	covered := data[:len(data)-CrcSize]
	wantCrc := binary.LittleEndian.Uint32(data[len(data)-CrcSize:])
	if gotCrc := segment.Checksum(covered); gotCrc != wantCrc {
		return nil, fmt.Errorf("%w: computed 0x%08X, telegram carries 0x%08X", segment.ErrCrcMismatch, gotCrc, wantCrc)
	}

	if binary.LittleEndian.Uint32(data[0:4]) != StartOfFrame {
		return nil, fmt.Errorf("%w: missing start of frame sequence 0x02020202", segment.ErrMalformedTelegram)
	}
	version := binary.LittleEndian.Uint32(data[versionOffset:])
	if version != Version {
		return nil, fmt.Errorf("%w: got version %d, want %d", segment.ErrUnsupportedVersion, version, Version)
	}

	seg := &segment.Segment{
		CommandID:         binary.LittleEndian.Uint32(data[commandIDOffset:]),
		TelegramCounter:   binary.LittleEndian.Uint64(data[telegramCounterOffset:]),
		TimestampTransmit: binary.LittleEndian.Uint64(data[timestampTransmitOffset:]),
		Version:           version,
	}

	offset := HeaderSize
	moduleSize := binary.LittleEndian.Uint32(data[firstModuleSizeOffset:])
	for moduleSize > 0 {
		if moduleSize > maxModuleSize {
			return nil, fmt.Errorf("%w: declared module size %d exceeds limit", segment.ErrMalformedTelegram, moduleSize)
		}
		if offset+int(moduleSize) > len(covered) {
			return nil, fmt.Errorf("%w: module at offset %d overruns telegram", segment.ErrMalformedTelegram, offset)
		}
		module, nextModuleSize, err := decodeModule(data[offset : offset+int(moduleSize)])
		if err != nil {
			return nil, err
		}
		seg.Modules = append(seg.Modules, *module)
		offset += int(moduleSize)
		moduleSize = nextModuleSize
	}

	if len(seg.Modules) == 0 {
		return nil, fmt.Errorf("%w: telegram carries no modules", segment.ErrMalformedTelegram)
	}
	if offset != len(covered) {
		return nil, fmt.Errorf("%w: declared length %d does not match actual %d", segment.ErrMalformedTelegram, offset+CrcSize, len(data))
	}

	// Segment-level counters mirror the first module, matching how consumers
	// index segments by frame and segment number.
	seg.SegmentCounter = seg.Modules[0].SegmentCounter
	seg.FrameNumber = seg.Modules[0].FrameNumber
	seg.SenderID = seg.Modules[0].SenderID
	return seg, nil
}

// decodeModule parses one module (metadata plus measurement block) and returns
// it along with the declared size of the following module.
func decodeModule(data []byte) (*segment.Module, uint32, error) {
	if len(data) < metaFixedSize+metaTrailerSize {
		return nil, 0, fmt.Errorf("%w: module of %d bytes is below the minimal metadata size", segment.ErrMalformedTelegram, len(data))
	}

	m := &segment.Module{
		SegmentCounter: binary.LittleEndian.Uint32(data[0:]),
		FrameNumber:    binary.LittleEndian.Uint32(data[4:]),
		SenderID:       binary.LittleEndian.Uint32(data[8:]),
		LinesInModule:  binary.LittleEndian.Uint32(data[12:]),
		BeamsPerScan:   binary.LittleEndian.Uint32(data[16:]),
		EchosPerBeam:   binary.LittleEndian.Uint32(data[20:]),
	}

	lines := int(m.LinesInModule)
	beams := int(m.BeamsPerScan)
	echos := int(m.EchosPerBeam)
	if lines == 0 || beams == 0 || echos == 0 {
		return nil, 0, fmt.Errorf("%w: impossible module dimensions %dx%dx%d (lines x beams x echos)",
			segment.ErrMalformedTelegram, lines, beams, echos)
	}
	metaSize := moduleMetaSize(m.LinesInModule)
	if metaSize > len(data) {
		return nil, 0, fmt.Errorf("%w: metadata for %d lines overruns module of %d bytes",
			segment.ErrMalformedTelegram, lines, len(data))
	}

	offset := metaFixedSize
	m.TimestampStart = make([]uint64, lines)
	for i := range m.TimestampStart {
		m.TimestampStart[i] = binary.LittleEndian.Uint64(data[offset:])
		offset += 8
	}
	m.TimestampStop = make([]uint64, lines)
	for i := range m.TimestampStop {
		m.TimestampStop[i] = binary.LittleEndian.Uint64(data[offset:])
		offset += 8
	}
	m.Phi = readFloat32Array(data, &offset, lines)
	m.ThetaStart = readFloat32Array(data, &offset, lines)
	m.ThetaStop = readFloat32Array(data, &offset, lines)

	m.DistanceScalingFactor = math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	nextModuleSize := binary.LittleEndian.Uint32(data[offset:])
	offset += 4
	offset++ // reserved
	m.DataContentEchos = data[offset]
	offset++
	m.DataContentBeams = data[offset]
	offset++
	offset++ // reserved
	m.Content = segment.ContentFromBits(m.DataContentEchos, m.DataContentBeams)

	// The measurement block must account for the rest of the module exactly.
	lineSize := 0
	if m.Content.HasDistance {
		lineSize += echos * beams * 2
	}
	if m.Content.HasRssi {
		lineSize += echos * beams * 2
	}
	if m.Content.HasProperties {
		lineSize += beams
	}
	if m.Content.HasTheta {
		lineSize += beams * 2
	}
	if offset+lines*lineSize != len(data) {
		return nil, 0, fmt.Errorf("%w: module declares %d bytes but measurement block needs %d",
			segment.ErrMalformedTelegram, len(data), offset+lines*lineSize)
	}

	m.Lines = make([]segment.LineData, lines)
	for line := 0; line < lines; line++ {
		ld := &m.Lines[line]
		if m.Content.HasDistance {
			ld.RawDistance = make([][]uint16, echos)
			ld.Distance = make([][]float32, echos)
			for e := 0; e < echos; e++ {
				ld.RawDistance[e] = readUint16Array(data, &offset, beams)
				ld.Distance[e] = make([]float32, beams)
				for b, raw := range ld.RawDistance[e] {
					ld.Distance[e][b] = float32(raw) * m.DistanceScalingFactor
				}
			}
		}
		if m.Content.HasRssi {
			ld.Rssi = make([][]uint16, echos)
			for e := 0; e < echos; e++ {
				ld.Rssi[e] = readUint16Array(data, &offset, beams)
			}
		}
		// Properties precede channel theta on the wire; older documentation
		// shows them swapped.
		if m.Content.HasProperties {
			ld.Properties = append([]uint8(nil), data[offset:offset+beams]...)
			offset += beams
		}
		if m.Content.HasTheta {
			ld.ChannelTheta = make([]float32, beams)
			for b := range ld.ChannelTheta {
				ld.ChannelTheta[b] = float16.Frombits(binary.LittleEndian.Uint16(data[offset:])).Float32()
				offset += 2
			}
		}
	}

	return m, nextModuleSize, nil
}

func readFloat32Array(data []byte, offset *int, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[*offset:]))
		*offset += 4
	}
	return out
}

func readUint16Array(data []byte, offset *int, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[*offset:])
		*offset += 2
	}
	return out
}
