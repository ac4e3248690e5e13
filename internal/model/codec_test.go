package model

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
	"schema": "IFC4",
	"project": {"name": "House", "site": "Site A"},
	"units": [
		{"kind": "LENGTHUNIT", "name": "METRE", "prefix": "MILLI"}
	],
	"storeys": [
		{"id": "st1", "name": "Ground Floor", "elevation": 0}
	],
	"spaces": [
		{"id": "sp1", "name": "Kitchen", "storey_id": "st1"}
	],
	"elements": [
		{
			"id": "w1",
			"class": "IfcWall",
			"name": "Wall A",
			"container_id": "st1",
			"quantities": [
				{"kind": "volume", "name": "NetVolume", "value": 2.5}
			],
			"property_sets": [
				{"name": "Pset_WallCommon", "properties": {"LoadBearing": true}}
			],
			"material": {
				"kind": "layer_set",
				"layers": [
					{"material": "Concrete", "thickness": 150},
					{"material": "Insulation", "thickness": 50}
				]
			},
			"geometry": {"kind": "box", "length": 4000, "width": 200, "height": 2500}
		},
		{
			"id": "s1",
			"class": "IfcSlab",
			"geometry": {"kind": "brep", "solid_volume": 3.2}
		}
	]
}`

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, "IFC4", doc.Schema)
	assert.Equal(t, "House", doc.Project.Name)
	require.Len(t, doc.Units, 1)
	assert.Equal(t, UnitLength, doc.Units[0].Kind)
	assert.Equal(t, "MILLI", doc.Units[0].Prefix)
	require.Len(t, doc.Storeys, 1)
	require.Len(t, doc.Spaces, 1)
	assert.Equal(t, "st1", doc.Spaces[0].StoreyID)
	require.Len(t, doc.Elements, 2)

	wall := doc.Elements[0]
	assert.Equal(t, "IfcWall", wall.Class)
	require.Len(t, wall.Quantities, 1)
	assert.Equal(t, QuantityVolume, wall.Quantities[0].Kind)
	require.NotNil(t, wall.Material)
	assert.Equal(t, MaterialLayerSet, wall.Material.Kind)
	require.Len(t, wall.Material.Layers, 2)

	v, err := wall.Geometry.Volume()
	require.NoError(t, err)
	assert.InDelta(t, 4000*200*2500, v, 1e-6)

	slab := doc.Elements[1]
	v, err = slab.Geometry.Volume()
	require.NoError(t, err)
	assert.InDelta(t, 3.2, v, 1e-9)
	_, err = slab.Geometry.SurfaceArea()
	assert.Error(t, err)
}

func TestDecodeDocument_Empty(t *testing.T) {
	_, err := DecodeDocument(strings.NewReader(`{"project": {}, "elements": []}`))

	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestDecodeDocument_MissingElementID(t *testing.T) {
	_, err := DecodeDocument(strings.NewReader(`{"project": {}, "elements": [{"class": "IfcWall"}]}`))

	assert.ErrorIs(t, err, ErrMissingID)
}

func TestDecodeDocument_MissingElementClass(t *testing.T) {
	_, err := DecodeDocument(strings.NewReader(`{"project": {}, "elements": [{"id": "w1"}]}`))

	assert.ErrorIs(t, err, ErrMissingClass)
}

func TestDecodeDocument_UnknownGeometryKind(t *testing.T) {
	_, err := DecodeDocument(strings.NewReader(
		`{"project": {}, "elements": [{"id": "w1", "class": "IfcWall", "geometry": {"kind": "nurbs"}}]}`))

	assert.ErrorContains(t, err, "unknown geometry kind")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc, err := DecodeDocument(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeDocument(&buf, doc))

	again, err := DecodeDocument(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestBoxSolid_RejectsNonPositiveDimensions(t *testing.T) {
	_, err := BoxSolid{Length: 0, Width: 1, Height: 1}.Volume()
	assert.Error(t, err)

	_, err = BoxSolid{Length: 1, Width: -2, Height: 1}.SurfaceArea()
	assert.Error(t, err)
}
