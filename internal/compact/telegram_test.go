package compact

// Test-side telegram builder. All boundary cases (corrupted CRC, noise
// prefixes, split feeds) derive from telegrams produced here, so the decoder
// and extractor are always exercised against the same canonical encoding.

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"github.com/banshee-data/scansegment/internal/segment"
)

type moduleSpec struct {
	segmentCounter uint32
	frameNumber    uint32
	senderID       uint32
	lines          int
	beams          int
	echos          int
	hasDistance    bool
	hasRssi        bool
	hasProperties  bool
	hasTheta       bool
	scaling        float32
}

// defaultModule carries every channel so tests exercise the full layout.
func defaultModule() moduleSpec {
	return moduleSpec{
		segmentCounter: 7,
		frameNumber:    42,
		senderID:       0x1201,
		lines:          2,
		beams:          6,
		echos:          2,
		hasDistance:    true,
		hasRssi:        true,
		hasProperties:  true,
		hasTheta:       true,
		scaling:        2.0,
	}
}

// Deterministic channel values so tests can assert on decoded output.

func rawDistanceValue(line, echo, beam int) uint16 {
	return uint16(1000 + 100*line + 10*echo + beam)
}

func rssiValue(line, echo, beam int) uint16 {
	return uint16(50 + 10*line + 5*echo + beam)
}

func propertyValue(line, beam int) uint8 {
	return uint8(line*16 + beam)
}

func thetaValue(line, beam int) float16.Float16 {
	return float16.Fromfloat32(float32(beam-3) * 0.25)
}

func putUint32(buf []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(buf[offset:], v)
}

func encodeModule(spec moduleSpec, nextModuleSize uint32) []byte {
	var out []byte
	appendU32 := func(v uint32) {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	appendU64 := func(v uint64) {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	appendU16 := func(v uint16) {
		out = binary.LittleEndian.AppendUint16(out, v)
	}
	appendF32 := func(v float32) {
		appendU32(math.Float32bits(v))
	}

	appendU32(spec.segmentCounter)
	appendU32(spec.frameNumber)
	appendU32(spec.senderID)
	appendU32(uint32(spec.lines))
	appendU32(uint32(spec.beams))
	appendU32(uint32(spec.echos))
	for line := 0; line < spec.lines; line++ {
		appendU64(uint64(100000 + 1000*line))
	}
	for line := 0; line < spec.lines; line++ {
		appendU64(uint64(100500 + 1000*line))
	}
	for line := 0; line < spec.lines; line++ {
		appendF32(float32(line) * 0.05) // phi
	}
	for line := 0; line < spec.lines; line++ {
		appendF32(-0.7 + float32(line)*0.01) // theta start
	}
	for line := 0; line < spec.lines; line++ {
		appendF32(0.7 + float32(line)*0.01) // theta stop
	}
	appendF32(spec.scaling)
	appendU32(nextModuleSize)

	var contentEchos, contentBeams uint8
	if spec.hasDistance {
		contentEchos |= segment.MaskDistanceAvailable
	}
	if spec.hasRssi {
		contentEchos |= segment.MaskRssiAvailable
	}
	if spec.hasProperties {
		contentBeams |= segment.MaskPropertiesAvailable
	}
	if spec.hasTheta {
		contentBeams |= segment.MaskThetaAvailable
	}
	out = append(out, 0, contentEchos, contentBeams, 0)

	for line := 0; line < spec.lines; line++ {
		if spec.hasDistance {
			for echo := 0; echo < spec.echos; echo++ {
				for beam := 0; beam < spec.beams; beam++ {
					appendU16(rawDistanceValue(line, echo, beam))
				}
			}
		}
		if spec.hasRssi {
			for echo := 0; echo < spec.echos; echo++ {
				for beam := 0; beam < spec.beams; beam++ {
					appendU16(rssiValue(line, echo, beam))
				}
			}
		}
		if spec.hasProperties {
			for beam := 0; beam < spec.beams; beam++ {
				out = append(out, propertyValue(line, beam))
			}
		}
		if spec.hasTheta {
			for beam := 0; beam < spec.beams; beam++ {
				appendU16(thetaValue(line, beam).Bits())
			}
		}
	}

	return out
}

// encodeTelegram assembles a complete telegram from the given modules and
// appends the CRC word.
func encodeTelegram(telegramCounter uint64, modules ...moduleSpec) []byte {
	encoded := make([][]byte, len(modules))
	for i := len(modules) - 1; i >= 0; i-- {
		next := uint32(0)
		if i < len(modules)-1 {
			next = uint32(len(encoded[i+1]))
		}
		encoded[i] = encodeModule(modules[i], next)
	}

	header := make([]byte, HeaderSize)
	putUint32(header, 0, StartOfFrame)
	putUint32(header, commandIDOffset, 1)
	binary.LittleEndian.PutUint64(header[telegramCounterOffset:], telegramCounter)
	binary.LittleEndian.PutUint64(header[timestampTransmitOffset:], 1700000000000000)
	putUint32(header, versionOffset, Version)
	putUint32(header, firstModuleSizeOffset, uint32(len(encoded[0])))

	telegram := header
	for _, module := range encoded {
		telegram = append(telegram, module...)
	}
	return appendCrc(telegram)
}

// appendCrc finalises a telegram by appending the checksum of everything
// before it.
func appendCrc(telegram []byte) []byte {
	return binary.LittleEndian.AppendUint32(telegram, segment.Checksum(telegram))
}
