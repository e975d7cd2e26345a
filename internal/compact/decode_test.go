package compact

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/banshee-data/scansegment/internal/segment"
)

func TestDecodeSingleModule(t *testing.T) {
	spec := defaultModule()
	telegram := encodeTelegram(1234, spec)

	seg, err := Decode(telegram)
	require.NoError(t, err)

	require.Equal(t, uint64(1234), seg.TelegramCounter)
	require.Equal(t, uint64(1700000000000000), seg.TimestampTransmit)
	require.Equal(t, uint32(1), seg.CommandID)
	require.Equal(t, uint32(Version), seg.Version)
	require.Equal(t, spec.segmentCounter, seg.SegmentCounter)
	require.Equal(t, spec.frameNumber, seg.FrameNumber)
	require.Equal(t, spec.senderID, seg.SenderID)
	require.Len(t, seg.Modules, 1)

	m := seg.Modules[0]
	require.Equal(t, uint32(spec.lines), m.LinesInModule)
	require.Equal(t, uint32(spec.beams), m.BeamsPerScan)
	require.Equal(t, uint32(spec.echos), m.EchosPerBeam)
	require.Equal(t, spec.scaling, m.DistanceScalingFactor)
	require.True(t, m.Content.HasDistance)
	require.True(t, m.Content.HasRssi)
	require.True(t, m.Content.HasProperties)
	require.True(t, m.Content.HasTheta)

	// Per-line metadata arrays are all lines long.
	require.Len(t, m.TimestampStart, spec.lines)
	require.Len(t, m.TimestampStop, spec.lines)
	require.Len(t, m.Phi, spec.lines)
	require.Len(t, m.ThetaStart, spec.lines)
	require.Len(t, m.ThetaStop, spec.lines)
	require.Equal(t, uint64(100000), m.TimestampStart[0])
	require.Equal(t, uint64(101500), m.TimestampStop[1])

	require.Len(t, m.Lines, spec.lines)
	for line, ld := range m.Lines {
		require.Len(t, ld.Distance, spec.echos)
		require.Len(t, ld.RawDistance, spec.echos)
		require.Len(t, ld.Rssi, spec.echos)
		for echo := 0; echo < spec.echos; echo++ {
			require.Len(t, ld.Distance[echo], spec.beams)
			for beam := 0; beam < spec.beams; beam++ {
				raw := rawDistanceValue(line, echo, beam)
				require.Equal(t, raw, ld.RawDistance[echo][beam])
				require.Equal(t, float32(raw)*spec.scaling, ld.Distance[echo][beam],
					"distance must be eagerly scaled to millimetres")
				require.Equal(t, rssiValue(line, echo, beam), ld.Rssi[echo][beam],
					"rssi must stay raw, unscaled")
			}
		}
		require.Len(t, ld.Properties, spec.beams)
		require.Len(t, ld.ChannelTheta, spec.beams)
		for beam := 0; beam < spec.beams; beam++ {
			require.Equal(t, propertyValue(line, beam), ld.Properties[beam])
			require.Equal(t, thetaValue(line, beam).Float32(), ld.ChannelTheta[beam])
		}
	}
}

func TestDecodeMultipleModules(t *testing.T) {
	first := defaultModule()
	second := defaultModule()
	second.segmentCounter = 8
	second.lines = 1
	second.beams = 4
	second.echos = 1
	second.hasRssi = false
	second.hasTheta = false

	seg, err := Decode(encodeTelegram(99, first, second))
	require.NoError(t, err)
	require.Len(t, seg.Modules, 2)

	// Segment-level counters mirror the first module.
	require.Equal(t, first.segmentCounter, seg.SegmentCounter)

	m := seg.Modules[1]
	require.Equal(t, uint32(8), m.SegmentCounter)
	require.False(t, m.Content.HasRssi)
	require.False(t, m.Content.HasTheta)
	require.Nil(t, m.Lines[0].Rssi)
	require.Nil(t, m.Lines[0].ChannelTheta)
	require.NotNil(t, m.Lines[0].Distance)
	require.NotNil(t, m.Lines[0].Properties)
}

func TestDecodeDistanceOnlyModule(t *testing.T) {
	spec := defaultModule()
	spec.hasRssi = false
	spec.hasProperties = false
	spec.hasTheta = false

	seg, err := Decode(encodeTelegram(5, spec))
	require.NoError(t, err)

	ld := seg.Modules[0].Lines[0]
	require.NotNil(t, ld.Distance)
	require.Nil(t, ld.Rssi)
	require.Nil(t, ld.Properties)
	require.Nil(t, ld.ChannelTheta)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	telegram[0] = 0x03
	// Keep the CRC consistent so the magic check itself is what trips.
	telegram = appendCrc(telegram[:len(telegram)-CrcSize])

	_, err := Decode(telegram)
	require.ErrorIs(t, err, segment.ErrMalformedTelegram)
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	putUint32(telegram, versionOffset, 3)
	telegram = appendCrc(telegram[:len(telegram)-CrcSize])

	_, err := Decode(telegram)
	require.ErrorIs(t, err, segment.ErrUnsupportedVersion)
}

func TestDecodeRejectsZeroedCrc(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	for i := len(telegram) - CrcSize; i < len(telegram); i++ {
		telegram[i] = 0
	}
	_, err := Decode(telegram)
	require.ErrorIs(t, err, segment.ErrCrcMismatch)
}

// TestDecodeDetectsAnyCoveredByteFlip flips every byte of the covered region
// in turn; each corruption must surface as a checksum failure.
func TestDecodeDetectsAnyCoveredByteFlip(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	for i := 0; i < len(telegram)-CrcSize; i++ {
		corrupted := append([]byte(nil), telegram...)
		corrupted[i] ^= 0xFF
		_, err := Decode(corrupted)
		require.ErrorIs(t, err, segment.ErrCrcMismatch, "flip at byte %d", i)
	}
}

func TestDecodeRejectsDeclaredLengthMismatch(t *testing.T) {
	// Appending a spare byte before the CRC breaks the declared-length
	// invariant without touching any module.
	telegram := encodeTelegram(1, defaultModule())
	body := append([]byte(nil), telegram[:len(telegram)-CrcSize]...)
	body = append(body, 0x00)
	_, err := Decode(appendCrc(body))
	require.ErrorIs(t, err, segment.ErrMalformedTelegram)
}

func TestDecodeRejectsImpossibleDimensions(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	// Zero the echo count inside the first module's metadata.
	putUint32(telegram, HeaderSize+20, 0)
	telegram = appendCrc(telegram[:len(telegram)-CrcSize])

	_, err := Decode(telegram)
	require.ErrorIs(t, err, segment.ErrMalformedTelegram)
}

func TestDecodeRejectsModuleOverrun(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	// Declare a first module larger than the telegram.
	putUint32(telegram, firstModuleSizeOffset, uint32(len(telegram)))
	telegram = appendCrc(telegram[:len(telegram)-CrcSize])

	_, err := Decode(telegram)
	require.ErrorIs(t, err, segment.ErrMalformedTelegram)
}

func TestDecodeRejectsTooShortInput(t *testing.T) {
	_, err := Decode([]byte{0x02, 0x02, 0x02})
	require.ErrorIs(t, err, segment.ErrMalformedTelegram)
}

func TestDecodeHalfPrecisionEdgeCases(t *testing.T) {
	// Subnormal, negative zero, and infinity must decode per binary16 rules.
	cases := []struct {
		bits uint16
		want float32
	}{
		{0x0001, 0x1p-24},                       // smallest positive subnormal
		{0x8000, float32(math.Copysign(0, -1))}, // negative zero
		{0x3C00, 1.0},
		{0xC000, -2.0},
		{0x7C00, float32(math.Inf(1))},
	}
	for _, tc := range cases {
		got := float16.Frombits(tc.bits).Float32()
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("binary16 0x%04X decoded wrong (-want +got):\n%s", tc.bits, diff)
		}
	}

	// NaN stays NaN through the decode path.
	if !math.IsNaN(float64(float16.Frombits(0x7E00).Float32())) {
		t.Error("binary16 NaN did not decode to NaN")
	}
}
