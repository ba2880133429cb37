package search

// floatScale fixes the precision search-summary dimensions are quantised
// to before bit-packing: hundredths of a millimetre, close enough for
// display while keeping the schema's bit widths bounded by an integer
// maximum.
const floatScale = 100

func quantise(f float32) uint32 {
	if f < 0 {
		return 0
	}
	return uint32(f*floatScale + 0.5)
}

func dequantise(v uint32) float32 {
	return float32(v) / floatScale
}

// DrawingSummary is one search result row: enough of a drawing's shape
// to render a result-list entry without a full DrawingDetails round
// trip.
type DrawingSummary struct {
	DrawingNumber  string
	MatID          uint32
	Width, Length  float32
	MaterialHandle uint32
	LapSize        float32
	ApertureHandle uint32
	BarSpacings    []float32
	ExtraApertures []uint32
}

// CompressionSchema pins the bit width of every DrawingSummary field to
// the current maxima in the database. A fresh schema is computed for
// every search response and is transmitted in-band with it so both peers
// agree on field widths without a side-channel negotiation.
type CompressionSchema struct {
	MatIDBits               uint8
	WidthBits               uint8
	LengthBits              uint8
	MaterialHandleBits      uint8
	LapSizeBits             uint8
	ApertureHandleBits      uint8
	BarSpacingCountBits     uint8
	BarSpacingBits          uint8
	DrawingNumberLengthBits uint8
	ExtraApertureCountBits  uint8
}

// SchemaMaxima is the set of database/catalog maxima
// NewCompressionSchema quantises into bit widths.
type SchemaMaxima struct {
	MaxMatID               uint32
	MaxWidth, MaxLength    float32
	MaxMaterialHandle      uint32
	MaxLapSize             float32
	MaxApertureHandle      uint32
	MaxBarSpacingCount     uint32
	MaxBarSpacing          float32
	MaxDrawingNumberLength uint32
	MaxExtraApertureCount  uint32
}

// NewCompressionSchema computes the bit width each field needs to encode
// every value up to its maximum.
func NewCompressionSchema(m SchemaMaxima) CompressionSchema {
	return CompressionSchema{
		MatIDBits:               bitsNeeded(m.MaxMatID),
		WidthBits:               bitsNeeded(quantise(m.MaxWidth)),
		LengthBits:              bitsNeeded(quantise(m.MaxLength)),
		MaterialHandleBits:      bitsNeeded(m.MaxMaterialHandle),
		LapSizeBits:             bitsNeeded(quantise(m.MaxLapSize)),
		ApertureHandleBits:      bitsNeeded(m.MaxApertureHandle),
		BarSpacingCountBits:     bitsNeeded(m.MaxBarSpacingCount),
		BarSpacingBits:          bitsNeeded(quantise(m.MaxBarSpacing)),
		DrawingNumberLengthBits: bitsNeeded(m.MaxDrawingNumberLength),
		ExtraApertureCountBits:  bitsNeeded(m.MaxExtraApertureCount),
	}
}

// Encode serialises the schema's ten bit widths as plain bytes ahead of
// the bit-packed summaries, so a receiving peer can parse the schema
// without itself recomputing catalog maxima.
func (s CompressionSchema) Encode() []byte {
	return []byte{
		s.MatIDBits, s.WidthBits, s.LengthBits, s.MaterialHandleBits, s.LapSizeBits,
		s.ApertureHandleBits, s.BarSpacingCountBits, s.BarSpacingBits,
		s.DrawingNumberLengthBits, s.ExtraApertureCountBits,
	}
}

// SchemaEncodedSize is the byte width of an Encode'd schema.
const SchemaEncodedSize = 10

// DecodeSchema parses a schema previously produced by Encode.
func DecodeSchema(buf []byte) CompressionSchema {
	return CompressionSchema{
		MatIDBits:               buf[0],
		WidthBits:               buf[1],
		LengthBits:              buf[2],
		MaterialHandleBits:      buf[3],
		LapSizeBits:             buf[4],
		ApertureHandleBits:      buf[5],
		BarSpacingCountBits:     buf[6],
		BarSpacingBits:          buf[7],
		DrawingNumberLengthBits: buf[8],
		ExtraApertureCountBits:  buf[9],
	}
}

// CompressedSize reports how many whole bytes summary will occupy once
// packed under schema.
func (s CompressionSchema) CompressedSize(summary DrawingSummary) int {
	bits := int(s.MatIDBits) + int(s.WidthBits) + int(s.LengthBits) +
		int(s.MaterialHandleBits) + int(s.LapSizeBits) + int(s.ApertureHandleBits) +
		int(s.BarSpacingCountBits) + len(summary.BarSpacings)*int(s.BarSpacingBits) +
		int(s.DrawingNumberLengthBits) + len(summary.DrawingNumber)*8 +
		int(s.ExtraApertureCountBits) + len(summary.ExtraApertures)*int(s.ApertureHandleBits)
	return (bits + 7) / 8
}

// CompressSummary packs summary's fields into a schema-shaped bit
// stream. The drawing number's characters are written byte-aligned (8
// bits each) after its bit-packed length, since they are display text
// rather than a bounded-maximum numeric field.
func (s CompressionSchema) CompressSummary(summary DrawingSummary) []byte {
	w := &BitWriter{}
	w.WriteBits(uint64(summary.MatID), int(s.MatIDBits))
	w.WriteBits(uint64(quantise(summary.Width)), int(s.WidthBits))
	w.WriteBits(uint64(quantise(summary.Length)), int(s.LengthBits))
	w.WriteBits(uint64(summary.MaterialHandle), int(s.MaterialHandleBits))
	w.WriteBits(uint64(quantise(summary.LapSize)), int(s.LapSizeBits))
	w.WriteBits(uint64(summary.ApertureHandle), int(s.ApertureHandleBits))

	w.WriteBits(uint64(len(summary.BarSpacings)), int(s.BarSpacingCountBits))
	for _, bs := range summary.BarSpacings {
		w.WriteBits(uint64(quantise(bs)), int(s.BarSpacingBits))
	}

	w.WriteBits(uint64(len(summary.DrawingNumber)), int(s.DrawingNumberLengthBits))
	for _, ch := range []byte(summary.DrawingNumber) {
		w.WriteBits(uint64(ch), 8)
	}

	w.WriteBits(uint64(len(summary.ExtraApertures)), int(s.ExtraApertureCountBits))
	for _, h := range summary.ExtraApertures {
		w.WriteBits(uint64(h), int(s.ApertureHandleBits))
	}

	out := w.Bytes()
	want := s.CompressedSize(summary)
	for len(out) < want {
		out = append(out, 0)
	}
	return out[:want]
}

// DecompressSummary unpacks a buffer CompressSummary produced. The
// caller must know the number of trailing bytes to hand in (e.g. from a
// wire length prefix), since the stream is otherwise self-describing
// except for its own terminal byte padding.
func (s CompressionSchema) DecompressSummary(buf []byte) DrawingSummary {
	r := NewBitReader(buf)
	var out DrawingSummary
	out.MatID = uint32(r.ReadBits(int(s.MatIDBits)))
	out.Width = dequantise(uint32(r.ReadBits(int(s.WidthBits))))
	out.Length = dequantise(uint32(r.ReadBits(int(s.LengthBits))))
	out.MaterialHandle = uint32(r.ReadBits(int(s.MaterialHandleBits)))
	out.LapSize = dequantise(uint32(r.ReadBits(int(s.LapSizeBits))))
	out.ApertureHandle = uint32(r.ReadBits(int(s.ApertureHandleBits)))

	barCount := int(r.ReadBits(int(s.BarSpacingCountBits)))
	out.BarSpacings = make([]float32, barCount)
	for i := range out.BarSpacings {
		out.BarSpacings[i] = dequantise(uint32(r.ReadBits(int(s.BarSpacingBits))))
	}

	nameLen := int(r.ReadBits(int(s.DrawingNumberLengthBits)))
	name := make([]byte, nameLen)
	for i := range name {
		name[i] = byte(r.ReadBits(8))
	}
	out.DrawingNumber = string(name)

	extraCount := int(r.ReadBits(int(s.ExtraApertureCountBits)))
	out.ExtraApertures = make([]uint32, extraCount)
	for i := range out.ExtraApertures {
		out.ExtraApertures[i] = uint32(r.ReadBits(int(s.ApertureHandleBits)))
	}

	return out
}
