package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaxima() SchemaMaxima {
	return SchemaMaxima{
		MaxMatID:               500,
		MaxWidth:               3000,
		MaxLength:              5000,
		MaxMaterialHandle:      1000,
		MaxLapSize:             50,
		MaxApertureHandle:      1000,
		MaxBarSpacingCount:     8,
		MaxBarSpacing:          200,
		MaxDrawingNumberLength: 32,
		MaxExtraApertureCount:  4,
	}
}

func TestBitWriterReaderRoundTrip(t *testing.T) {
	w := &BitWriter{}
	w.WriteBits(0b101, 3)
	w.WriteBits(0b11111111, 8)
	w.WriteBits(0, 1)
	w.WriteBits(0b1, 1)

	r := NewBitReader(w.Bytes())
	assert.Equal(t, uint64(0b101), r.ReadBits(3))
	assert.Equal(t, uint64(0b11111111), r.ReadBits(8))
	assert.Equal(t, uint64(0), r.ReadBits(1))
	assert.Equal(t, uint64(1), r.ReadBits(1))
}

func TestBitsNeededFloorsAtOneBit(t *testing.T) {
	assert.Equal(t, uint8(1), bitsNeeded(0))
	assert.Equal(t, uint8(1), bitsNeeded(1))
	assert.Equal(t, uint8(8), bitsNeeded(255))
	assert.Equal(t, uint8(9), bitsNeeded(256))
}

func TestQuantiseDequantiseRoundTripsWithinScale(t *testing.T) {
	got := dequantise(quantise(123.45))
	assert.InDelta(t, 123.45, got, 1.0/floatScale)
}

func TestQuantiseClampsNegativeToZero(t *testing.T) {
	assert.Equal(t, uint32(0), quantise(-5))
}

func TestSchemaEncodeDecodeRoundTrip(t *testing.T) {
	schema := NewCompressionSchema(testMaxima())
	buf := schema.Encode()
	require.Len(t, buf, SchemaEncodedSize)

	got := DecodeSchema(buf)
	assert.Equal(t, schema, got)
}

func TestCompressDecompressSummaryRoundTrip(t *testing.T) {
	schema := NewCompressionSchema(testMaxima())
	summary := DrawingSummary{
		DrawingNumber:  "D12345",
		MatID:          42,
		Width:          1200.5,
		Length:         2400.25,
		MaterialHandle: 7,
		LapSize:        12.5,
		ApertureHandle: 3,
		BarSpacings:    []float32{100, 200.5, 50},
		ExtraApertures: []uint32{1, 2, 3},
	}

	packed := schema.CompressSummary(summary)
	assert.Equal(t, schema.CompressedSize(summary), len(packed))

	got := schema.DecompressSummary(packed)
	assert.Equal(t, summary.DrawingNumber, got.DrawingNumber)
	assert.Equal(t, summary.MatID, got.MatID)
	assert.InDelta(t, summary.Width, got.Width, 1.0/floatScale)
	assert.InDelta(t, summary.Length, got.Length, 1.0/floatScale)
	assert.Equal(t, summary.MaterialHandle, got.MaterialHandle)
	assert.InDelta(t, summary.LapSize, got.LapSize, 1.0/floatScale)
	assert.Equal(t, summary.ApertureHandle, got.ApertureHandle)
	require.Len(t, got.BarSpacings, len(summary.BarSpacings))
	for i := range summary.BarSpacings {
		assert.InDelta(t, summary.BarSpacings[i], got.BarSpacings[i], 1.0/floatScale)
	}
	assert.Equal(t, summary.ExtraApertures, got.ExtraApertures)
}

func TestCompressSummaryHandlesEmptyCollections(t *testing.T) {
	schema := NewCompressionSchema(testMaxima())
	summary := DrawingSummary{DrawingNumber: "", BarSpacings: nil, ExtraApertures: nil}

	packed := schema.CompressSummary(summary)
	got := schema.DecompressSummary(packed)

	assert.Equal(t, "", got.DrawingNumber)
	assert.Empty(t, got.BarSpacings)
	assert.Empty(t, got.ExtraApertures)
}
