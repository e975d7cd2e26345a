package compact

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scansegment/internal/monitoring"
)

func init() {
	// Resync events log through the package logger; keep test output quiet.
	monitoring.SetLogger(nil)
}

func TestExtractorSingleTelegram(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())

	e := NewStreamExtractor()
	got := e.Extract(telegram)
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(telegram, got[0]))
}

func TestExtractorByteAtATimeMatchesOneChunk(t *testing.T) {
	stream := append(encodeTelegram(1, defaultModule()), encodeTelegram(2, defaultModule())...)

	whole := NewStreamExtractor().Extract(stream)

	single := NewStreamExtractor()
	var dribbled [][]byte
	for i := range stream {
		dribbled = append(dribbled, single.Extract(stream[i:i+1])...)
	}

	require.Equal(t, whole, dribbled)
	require.Len(t, whole, 2)
}

func TestExtractorDiscardsNoiseBeforeMagic(t *testing.T) {
	telegram := encodeTelegram(7, defaultModule())
	noise := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x02, 0x02, 0x55, 0xAA, 0x00, 0xFF, 0x10, 0x20, 0x30, 0x40}
	require.Len(t, noise, 17)

	e := NewStreamExtractor()
	got := e.Extract(append(noise, telegram...))
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(telegram, got[0]))
}

func TestExtractorBackToBackTelegrams(t *testing.T) {
	first := encodeTelegram(1, defaultModule())
	second := encodeTelegram(2, defaultModule(), defaultModule())

	e := NewStreamExtractor()
	got := e.Extract(append(append([]byte(nil), first...), second...))
	require.Len(t, got, 2)
	require.True(t, bytes.Equal(first, got[0]))
	require.True(t, bytes.Equal(second, got[1]))
}

func TestExtractorTruncationNeverEmits(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	for cut := 0; cut < len(telegram); cut++ {
		e := NewStreamExtractor()
		got := e.Extract(telegram[:cut])
		require.Empty(t, got, "truncation at %d emitted a telegram", cut)
	}
}

func TestExtractorResumesAfterPartialFeed(t *testing.T) {
	telegram := encodeTelegram(3, defaultModule())
	split := len(telegram) / 3

	e := NewStreamExtractor()
	require.Empty(t, e.Extract(telegram[:split]))
	require.Empty(t, e.Extract(telegram[split:2*split]))
	got := e.Extract(telegram[2*split:])
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(telegram, got[0]))
}

func TestExtractorResyncsOnBogusVersion(t *testing.T) {
	bogus := encodeTelegram(1, defaultModule())
	putUint32(bogus, versionOffset, 9)
	genuine := encodeTelegram(2, defaultModule())

	e := NewStreamExtractor()
	got := e.Extract(append(bogus[:HeaderSize], genuine...))
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(genuine, got[0]))
}

func TestExtractorResyncsOnZeroFirstModuleSize(t *testing.T) {
	bogus := make([]byte, HeaderSize)
	putUint32(bogus, 0, StartOfFrame)
	putUint32(bogus, versionOffset, Version)
	// size_module_0 left zero
	genuine := encodeTelegram(2, defaultModule())

	e := NewStreamExtractor()
	got := e.Extract(append(bogus, genuine...))
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(genuine, got[0]))
}

func TestExtractorEmitsCorruptedCrcTelegram(t *testing.T) {
	// CRC verification is the decoder's job; the extractor must still frame
	// and emit a telegram whose checksum is wrong.
	telegram := encodeTelegram(1, defaultModule())
	for i := len(telegram) - CrcSize; i < len(telegram); i++ {
		telegram[i] = 0
	}

	e := NewStreamExtractor()
	got := e.Extract(telegram)
	require.Len(t, got, 1)
}

func TestExtractorKeepsTrailingBytes(t *testing.T) {
	telegram := encodeTelegram(1, defaultModule())
	next := encodeTelegram(2, defaultModule())
	half := len(next) / 2

	e := NewStreamExtractor()
	got := e.Extract(append(append([]byte(nil), telegram...), next[:half]...))
	require.Len(t, got, 1)

	got = e.Extract(next[half:])
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(next, got[0]))
}
