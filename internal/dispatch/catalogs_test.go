package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/drawserver/internal/catalog"
)

func TestApertureShapeRebuildDirtiesApertures(t *testing.T) {
	c := NewCatalogs()

	w := catalog.NewWriter()
	w.RequestKind(catalog.SourceApertureShapeTable)
	w.Uint32(0)
	require.NoError(t, c.ApertureShapes.Source(w.Bytes()))
	assert.True(t, c.Apertures.Dirty(), "apertures must start dirty")

	w2 := catalog.NewWriter()
	w2.RequestKind(catalog.SourceApertureTable)
	w2.Uint32(0)
	require.NoError(t, c.Apertures.Source(w2.Bytes()))
	assert.False(t, c.Apertures.Dirty())

	require.NoError(t, c.ApertureShapes.Source(w.Bytes()))
	assert.True(t, c.Apertures.Dirty(), "rebuilding aperture shapes must re-dirty apertures")
}

func TestMaterialRebuildDirtiesBackingStrips(t *testing.T) {
	c := NewCatalogs()

	w := catalog.NewWriter()
	w.RequestKind(catalog.SourceMaterialTable)
	w.Uint32(0)

	w2 := catalog.NewWriter()
	w2.RequestKind(catalog.SourceBackingStripsTable)
	w2.Uint32(0)
	require.NoError(t, c.BackingStrips.Source(w2.Bytes()))
	assert.False(t, c.BackingStrips.Dirty())

	require.NoError(t, c.Materials.Source(w.Bytes()))
	assert.True(t, c.BackingStrips.Dirty(), "rebuilding materials must re-dirty backing strips")
}
