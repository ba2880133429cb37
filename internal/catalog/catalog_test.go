package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildProductSource(entries map[uint32]string) []byte {
	w := NewWriter()
	w.RequestKind(SourceProductTable)
	w.Uint32(uint32(len(entries)))
	for handle, name := range entries {
		w.Uint32(handle)
		w.Uint32(handle * 10) // database id, arbitrary for the test
		w.String(name)
	}
	return w.Bytes()
}

func TestCatalogSourcePopulatesNullEntityAtHandleZero(t *testing.T) {
	c := New(NullProduct(), DecodeProduct)
	require.True(t, c.Dirty())

	require.NoError(t, c.Source(buildProductSource(map[uint32]string{1: "standard", 2: "premium"})))

	assert.False(t, c.Dirty())
	e, ok := c.GetByHandle(0)
	require.True(t, ok)
	assert.Equal(t, Product{}, e)
	assert.Len(t, c.HandleSet(), 3, "null handle plus the two sourced entities")
}

func TestCatalogSourceRoundTripsEntities(t *testing.T) {
	c := New(NullProduct(), DecodeProduct)
	require.NoError(t, c.Source(buildProductSource(map[uint32]string{1: "standard", 5: "premium"})))

	e, ok := c.GetByHandle(1)
	require.True(t, ok)
	assert.Equal(t, "standard", e.Name)
	assert.Equal(t, uint32(10), e.DatabaseID())

	e5, ok := c.GetByHandle(5)
	require.True(t, ok)
	assert.Equal(t, "premium", e5.Name)
	assert.Equal(t, uint32(50), e5.DatabaseID())

	_, ok = c.GetByHandle(99)
	assert.False(t, ok)
}

func TestCatalogFindByIDAndAllByID(t *testing.T) {
	w := NewWriter()
	w.RequestKind(SourceProductTable)
	w.Uint32(2)
	w.Uint32(1)
	w.Uint32(7) // shared database id
	w.String("a")
	w.Uint32(2)
	w.Uint32(7) // shared database id
	w.String("b")

	c := New(NullProduct(), DecodeProduct)
	require.NoError(t, c.Source(w.Bytes()))

	found, ok := c.FindByID(7)
	require.True(t, ok)
	assert.Contains(t, []string{"a", "b"}, found.Name)

	all := c.AllByID(7)
	assert.Len(t, all, 2)

	_, ok = c.FindByID(404)
	assert.False(t, ok)
}

func TestCatalogMaxHandle(t *testing.T) {
	c := New(NullProduct(), DecodeProduct)
	assert.Equal(t, Handle(0), c.MaxHandle())

	require.NoError(t, c.Source(buildProductSource(map[uint32]string{3: "x", 9: "y", 1: "z"})))
	assert.Equal(t, Handle(9), c.MaxHandle())
}

func TestCatalogMarkDirtyAndCallbacks(t *testing.T) {
	c := New(NullProduct(), DecodeProduct)
	require.NoError(t, c.Source(buildProductSource(nil)))
	assert.False(t, c.Dirty())

	fired := 0
	c.AddCallback(func() { fired++ })

	c.MarkDirty()
	assert.True(t, c.Dirty())
	assert.Equal(t, 0, fired, "MarkDirty must not itself fire callbacks")

	require.NoError(t, c.Source(buildProductSource(nil)))
	assert.Equal(t, 1, fired)
}

func TestCatalogRawSourceIsVerbatim(t *testing.T) {
	buf := buildProductSource(map[uint32]string{1: "standard"})
	c := New(NullProduct(), DecodeProduct)
	require.NoError(t, c.Source(buf))
	assert.Equal(t, buf, c.RawSource())
}

func TestCatalogSourceRejectsTruncatedBuffer(t *testing.T) {
	w := NewWriter()
	w.RequestKind(SourceProductTable)
	w.Uint32(1)
	w.Uint32(1)
	w.Uint32(10)
	// missing the name field entirely

	c := New(NullProduct(), DecodeProduct)
	err := c.Source(w.Bytes())
	assert.Error(t, err)
}

func TestApertureShapeDecodeRoundTrip(t *testing.T) {
	w := NewWriter()
	w.String("square")

	shape, err := DecodeApertureShape(42, NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "square", shape.Shape)
	assert.Equal(t, uint32(42), shape.DatabaseID())
}

func TestShapeOrderKnownAndUnknown(t *testing.T) {
	assert.Equal(t, 1, ShapeOrder(1))
	assert.Equal(t, 0, ShapeOrder(6))
	assert.Equal(t, -1, ShapeOrder(999))
}

func TestDecodeExtraPriceShotBlastingCarriesAmount(t *testing.T) {
	w := NewWriter()
	w.Uint32(uint32(ShotBlasting))
	w.Float32(80)
	w.Uint32(400)

	r := NewReader(w.Bytes())
	e, err := DecodeExtraPrice(9, r)
	require.NoError(t, err)
	assert.Equal(t, "Shot Blasting", e.Name())
	require.NotNil(t, e.Amount)
	assert.Equal(t, uint32(400), *e.Amount)
	assert.Equal(t, 0, r.Remaining(), "amount must be consumed, not left for the next element")

	total, err := e.PriceFor(100)
	require.NoError(t, err)
	assert.InDelta(t, 100*(80.0/400.0), total, 1e-6)
}

func TestWriterReaderRoundTripPrimitives(t *testing.T) {
	w := NewWriter()
	w.Byte(0xAB)
	w.Bool(true)
	w.Uint16(0x1234)
	w.Uint32(0xDEADBEEF)
	w.Uint64(0x0102030405060708)
	w.Float32(3.5)
	w.String("hello")
	w.Raw([]byte{1, 2, 3})

	r := NewReader(w.Bytes())

	b, err := r.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b)

	boolVal, err := r.Bool()
	require.NoError(t, err)
	assert.True(t, boolVal)

	u16, err := r.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	f, err := r.Float32()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f)

	s, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	raw, err := r.Raw(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	assert.Equal(t, 0, r.Remaining())
}

func TestReaderRejectsShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.Uint32()
	assert.Error(t, err)
}
