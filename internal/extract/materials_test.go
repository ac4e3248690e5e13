package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louistrue/openBIM-service/internal/model"
)

func TestResolveMaterials_SingleMaterial(t *testing.T) {
	total := 3.2
	assoc := &model.MaterialAssociation{Kind: model.MaterialSingle, Name: "Concrete"}

	res := ResolveMaterials(assoc, &total, metricScales())

	assert.Equal(t, []string{"Concrete"}, res.Names)
	require.Len(t, res.Volumes, 1)
	require.NotNil(t, res.Volumes[0].Volume)
	assert.InDelta(t, 3.2, *res.Volumes[0].Volume, 1e-9)
	require.NotNil(t, res.Volumes[0].Fraction)
	assert.InDelta(t, 1.0, *res.Volumes[0].Fraction, 1e-9)
}

func TestResolveMaterials_SingleMaterialNoVolume(t *testing.T) {
	assoc := &model.MaterialAssociation{Kind: model.MaterialSingle, Name: "Steel"}

	res := ResolveMaterials(assoc, nil, metricScales())

	assert.Equal(t, []string{"Steel"}, res.Names)
	require.Len(t, res.Volumes, 1)
	assert.Nil(t, res.Volumes[0].Volume)
	assert.Nil(t, res.Volumes[0].Fraction)
}

func TestResolveMaterials_EqualLayers(t *testing.T) {
	// Two equal layers over a 10 m³ element split the volume evenly.
	total := 10.0
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialLayerSet,
		Layers: []model.MaterialLayer{
			{Material: "Concrete", Thickness: 0.1},
			{Material: "Insulation", Thickness: 0.1},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	require.Len(t, res.Volumes, 2)
	for _, mv := range res.Volumes {
		require.NotNil(t, mv.Volume)
		assert.InDelta(t, 5.0, *mv.Volume, 1e-9)
		require.NotNil(t, mv.Fraction)
		assert.InDelta(t, 0.5, *mv.Fraction, 1e-9)
		require.NotNil(t, mv.Width)
		assert.InDelta(t, 100.0, *mv.Width, 1e-9)
	}
}

func TestResolveMaterials_ProportionalLayers(t *testing.T) {
	total := 4.0
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialLayerSet,
		Layers: []model.MaterialLayer{
			{Material: "Concrete", Thickness: 0.3},
			{Material: "Insulation", Thickness: 0.1},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	require.Len(t, res.Volumes, 2)
	assert.InDelta(t, 3.0, *res.Volumes[0].Volume, 1e-9)
	assert.InDelta(t, 0.75, *res.Volumes[0].Fraction, 1e-9)
	assert.InDelta(t, 1.0, *res.Volumes[1].Volume, 1e-9)
	assert.InDelta(t, 0.25, *res.Volumes[1].Fraction, 1e-9)
}

func TestResolveMaterials_ZeroThicknessLayersStayUndefined(t *testing.T) {
	// Several layers with no usable thickness: never equal-split.
	total := 6.0
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialLayerSet,
		Layers: []model.MaterialLayer{
			{Material: "Concrete"},
			{Material: "Insulation"},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	assert.Equal(t, []string{"Concrete", "Insulation"}, res.Names)
	require.Len(t, res.Volumes, 2)
	for _, mv := range res.Volumes {
		assert.Nil(t, mv.Volume)
		assert.Nil(t, mv.Fraction)
	}
}

func TestResolveMaterials_LoneZeroThicknessLayerTakesFullVolume(t *testing.T) {
	total := 6.0
	assoc := &model.MaterialAssociation{
		Kind:   model.MaterialLayerSet,
		Layers: []model.MaterialLayer{{Material: "Concrete"}},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	require.Len(t, res.Volumes, 1)
	require.NotNil(t, res.Volumes[0].Volume)
	assert.InDelta(t, 6.0, *res.Volumes[0].Volume, 1e-9)
}

func TestResolveMaterials_DuplicateLayerNamesMerge(t *testing.T) {
	total := 8.0
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialLayerSet,
		Layers: []model.MaterialLayer{
			{Material: "Concrete", Thickness: 0.1},
			{Material: "Insulation", Thickness: 0.2},
			{Material: "Concrete", Thickness: 0.1},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	require.Len(t, res.Volumes, 2)
	// Merged entry keeps first-appearance order and sums all shares.
	assert.Equal(t, "Concrete", res.Volumes[0].Name)
	assert.InDelta(t, 4.0, *res.Volumes[0].Volume, 1e-9)
	assert.InDelta(t, 0.5, *res.Volumes[0].Fraction, 1e-9)
	assert.InDelta(t, 200.0, *res.Volumes[0].Width, 1e-9)
	assert.Equal(t, "Insulation", res.Volumes[1].Name)
	assert.InDelta(t, 4.0, *res.Volumes[1].Volume, 1e-9)
}

func TestResolveMaterials_ConstituentExplicitVolumes(t *testing.T) {
	total := 2.0
	v1, v2 := 1.5, 0.5
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialConstituentSet,
		Constituents: []model.MaterialConstituent{
			{Material: "Concrete", Volume: &v1},
			{Material: "Rebar", Volume: &v2},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	require.Len(t, res.Volumes, 2)
	assert.InDelta(t, 1.5, *res.Volumes[0].Volume, 1e-9)
	assert.InDelta(t, 0.75, *res.Volumes[0].Fraction, 1e-9)
	assert.InDelta(t, 0.5, *res.Volumes[1].Volume, 1e-9)
	assert.InDelta(t, 0.25, *res.Volumes[1].Fraction, 1e-9)
}

func TestResolveMaterials_ConstituentWidths(t *testing.T) {
	total := 3.0
	w1, w2 := 0.15, 0.05
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialConstituentSet,
		Constituents: []model.MaterialConstituent{
			{Material: "Brick", Width: &w1},
			{Material: "Plaster", Width: &w2},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	require.Len(t, res.Volumes, 2)
	assert.InDelta(t, 0.75, *res.Volumes[0].Fraction, 1e-9)
	assert.InDelta(t, 2.25, *res.Volumes[0].Volume, 1e-9)
	assert.InDelta(t, 150.0, *res.Volumes[0].Width, 1e-9)
	assert.InDelta(t, 0.25, *res.Volumes[1].Fraction, 1e-9)
}

func TestResolveMaterials_AmbiguousConstituentsStayUndefined(t *testing.T) {
	total := 3.0
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialConstituentSet,
		Constituents: []model.MaterialConstituent{
			{Material: "Brick"},
			{Material: "Plaster"},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	assert.Equal(t, []string{"Brick", "Plaster"}, res.Names)
	require.Len(t, res.Volumes, 2)
	for _, mv := range res.Volumes {
		assert.Nil(t, mv.Volume)
		assert.Nil(t, mv.Fraction)
	}
}

func TestResolveMaterials_InvalidFractionSumDropsAllocation(t *testing.T) {
	total := 2.0
	v1, v2 := 1.5, 1.5 // sums to 1.5× the element volume
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialConstituentSet,
		Constituents: []model.MaterialConstituent{
			{Material: "Concrete", Volume: &v1},
			{Material: "Rebar", Volume: &v2},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	assert.True(t, res.Invalid)
	assert.Nil(t, res.Volumes)
	assert.InDelta(t, 1.5, res.TotalFraction, 1e-9)
	// Names survive so materials can still be listed.
	assert.Equal(t, []string{"Concrete", "Rebar"}, res.Names)
}

func TestResolveMaterials_FractionSumWithinTolerance(t *testing.T) {
	total := 1.0
	v1, v2 := 0.6, 0.4004 // off by 4e-4, within tolerance
	assoc := &model.MaterialAssociation{
		Kind: model.MaterialConstituentSet,
		Constituents: []model.MaterialConstituent{
			{Material: "A", Volume: &v1},
			{Material: "B", Volume: &v2},
		},
	}

	res := ResolveMaterials(assoc, &total, metricScales())

	assert.False(t, res.Invalid)
	require.Len(t, res.Volumes, 2)
}

func TestResolveMaterials_NilAssociation(t *testing.T) {
	res := ResolveMaterials(nil, nil, metricScales())

	assert.Empty(t, res.Names)
	assert.Empty(t, res.Volumes)
}

func TestRoundForDisplay(t *testing.T) {
	v := 1.234567891
	f := 0.333333333
	w := 120.00049
	rounded := RoundForDisplay([]MaterialVolume{{Name: "A", Volume: &v, Fraction: &f, Width: &w}})

	require.Len(t, rounded, 1)
	assert.Equal(t, 1.23457, *rounded[0].Volume)
	assert.Equal(t, 0.33333, *rounded[0].Fraction)
	assert.Equal(t, 120.0, *rounded[0].Width)
}
