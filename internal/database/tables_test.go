package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/drawserver/internal/catalog"
)

func TestAssembleTableAssignsDenseHandlesFromOne(t *testing.T) {
	var seen []uint32
	buf := assembleTable(catalog.SourceMachineTable, 3, func(w *catalog.Writer, handle uint32) {
		seen = append(seen, handle)
		w.String("row")
	})

	assert.Equal(t, []uint32{1, 2, 3}, seen)

	r := catalog.NewReader(buf)
	kind, err := r.RequestKind()
	require.NoError(t, err)
	assert.Equal(t, catalog.SourceMachineTable, kind)

	count, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
}

func TestAssembleTableEmpty(t *testing.T) {
	called := false
	buf := assembleTable(catalog.SourceProductTable, 0, func(w *catalog.Writer, handle uint32) {
		called = true
	})
	assert.False(t, called)

	r := catalog.NewReader(buf)
	_, err := r.RequestKind()
	require.NoError(t, err)
	count, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), count)
}

func TestJoinColumns(t *testing.T) {
	assert.Equal(t, "", joinColumns(nil))
	assert.Equal(t, "a", joinColumns([]string{"a"}))
	assert.Equal(t, "a, b, c", joinColumns([]string{"a", "b", "c"}))
}

func TestSQLLiteral(t *testing.T) {
	assert.Equal(t, "NULL", sqlLiteral(nil))
	assert.Equal(t, "'it''s'", sqlLiteral("it's"))
	assert.Equal(t, "'raw''bytes'", sqlLiteral([]byte("raw'bytes")))
	assert.Equal(t, "42", sqlLiteral(42))
	assert.Equal(t, "3.5", sqlLiteral(3.5))
}

func TestByteBuilderWriteUint32IsLittleEndian(t *testing.T) {
	b := &byteBuilder{}
	b.writeUint32(7)
	assert.Equal(t, []byte{7, 0, 0, 0}, b.bytes())
}
