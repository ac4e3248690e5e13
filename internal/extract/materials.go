package extract

import (
	"math"

	"github.com/louistrue/openBIM-service/internal/model"
)

// FractionTolerance is the allowed deviation of a material fraction sum
// from 1.0 before the allocation is considered invalid.
const FractionTolerance = 1e-3

// MaterialVolume is one material's share of an element. Volume is in m³,
// Width in mm, Fraction in [0,1]. Nil fields mean the share could not be
// determined; ambiguous allocation is never fabricated.
type MaterialVolume struct {
	Name     string   `json:"name"`
	Volume   *float64 `json:"volume,omitempty"`
	Fraction *float64 `json:"fraction,omitempty"`
	Width    *float64 `json:"width,omitempty"`
}

// MaterialResolution is the outcome of resolving an element's material
// association. Names always lists every associated material; Volumes is
// nil when no allocation could be determined or the fraction sum failed
// validation.
type MaterialResolution struct {
	Names         []string
	Volumes       []MaterialVolume
	Invalid       bool
	TotalFraction float64
}

// ResolveMaterials computes each material's absolute volume and fraction
// of the element total. totalVolume is the element volume in m³, nil when
// unknown. Duplicate material names within one element merge under the
// same key.
func ResolveMaterials(assoc *model.MaterialAssociation, totalVolume *float64, scales UnitScales) MaterialResolution {
	if assoc == nil {
		return MaterialResolution{}
	}

	var res MaterialResolution
	switch assoc.Kind {
	case model.MaterialSingle:
		res = resolveSingle(assoc, totalVolume)
	case model.MaterialLayerSet:
		res = resolveLayers(assoc, totalVolume, scales)
	case model.MaterialConstituentSet:
		res = resolveConstituents(assoc, totalVolume, scales)
	default:
		return MaterialResolution{}
	}

	res.Volumes = mergeByName(res.Volumes)
	validateFractions(&res, totalVolume)
	return res
}

func resolveSingle(assoc *model.MaterialAssociation, totalVolume *float64) MaterialResolution {
	name := assoc.Name
	if name == "" {
		name = "Unnamed Material"
	}
	res := MaterialResolution{Names: []string{name}}
	if totalVolume == nil || *totalVolume == 0 {
		res.Volumes = []MaterialVolume{{Name: name}}
		return res
	}
	one := 1.0
	v := *totalVolume
	res.Volumes = []MaterialVolume{{Name: name, Volume: &v, Fraction: &one}}
	return res
}

// resolveLayers allocates the element volume proportionally to layer
// thickness.
func resolveLayers(assoc *model.MaterialAssociation, totalVolume *float64, scales UnitScales) MaterialResolution {
	var res MaterialResolution

	totalThickness := 0.0
	for _, layer := range assoc.Layers {
		res.Names = append(res.Names, layerName(layer))
		totalThickness += layer.Thickness
	}

	if totalThickness <= 0 {
		// No usable proportions. A lone layer still takes the full
		// volume; several undifferentiated layers stay undefined.
		if len(assoc.Layers) == 1 {
			single := model.MaterialAssociation{Name: layerName(assoc.Layers[0])}
			return resolveSingle(&single, totalVolume)
		}
		for _, layer := range assoc.Layers {
			res.Volumes = append(res.Volumes, MaterialVolume{Name: layerName(layer)})
		}
		return res
	}

	for _, layer := range assoc.Layers {
		mv := MaterialVolume{Name: layerName(layer)}
		width := layer.Thickness * scales.Length
		mv.Width = &width
		if totalVolume != nil && *totalVolume != 0 {
			fraction := layer.Thickness / totalThickness
			volume := *totalVolume * fraction
			mv.Fraction = &fraction
			mv.Volume = &volume
		}
		res.Volumes = append(res.Volumes, mv)
	}
	return res
}

// resolveConstituents takes explicit constituent volumes when every
// member carries one, falls back to width-proportional allocation, and
// leaves multiple undifferentiated constituents undefined.
func resolveConstituents(assoc *model.MaterialAssociation, totalVolume *float64, scales UnitScales) MaterialResolution {
	var res MaterialResolution
	for _, c := range assoc.Constituents {
		res.Names = append(res.Names, constituentName(c))
	}
	if len(assoc.Constituents) == 0 {
		return res
	}

	allVolumes := true
	totalWidth := 0.0
	for _, c := range assoc.Constituents {
		if c.Volume == nil {
			allVolumes = false
		}
		if c.Width != nil {
			totalWidth += *c.Width
		}
	}

	switch {
	case allVolumes:
		for _, c := range assoc.Constituents {
			mv := MaterialVolume{Name: constituentName(c)}
			volume := *c.Volume * scales.Volume
			mv.Volume = &volume
			if c.Width != nil {
				width := *c.Width * scales.Length
				mv.Width = &width
			}
			if totalVolume != nil && *totalVolume != 0 {
				fraction := volume / *totalVolume
				mv.Fraction = &fraction
			}
			res.Volumes = append(res.Volumes, mv)
		}

	case totalWidth > 0:
		for _, c := range assoc.Constituents {
			mv := MaterialVolume{Name: constituentName(c)}
			w := 0.0
			if c.Width != nil {
				w = *c.Width
			}
			width := w * scales.Length
			mv.Width = &width
			if totalVolume != nil && *totalVolume != 0 {
				fraction := w / totalWidth
				volume := *totalVolume * fraction
				mv.Fraction = &fraction
				mv.Volume = &volume
			}
			res.Volumes = append(res.Volumes, mv)
		}

	case len(assoc.Constituents) == 1:
		single := model.MaterialAssociation{Name: constituentName(assoc.Constituents[0])}
		return resolveSingle(&single, totalVolume)

	default:
		// Multiple constituents, no widths, no volumes: allocation is
		// ambiguous and stays undefined.
		for _, c := range assoc.Constituents {
			res.Volumes = append(res.Volumes, MaterialVolume{Name: constituentName(c)})
		}
	}
	return res
}

func layerName(layer model.MaterialLayer) string {
	if layer.Material == "" {
		return "Unnamed Material"
	}
	return layer.Material
}

func constituentName(c model.MaterialConstituent) string {
	if c.Material != "" {
		return c.Material
	}
	if c.Name != "" {
		return c.Name
	}
	return "Unnamed Material"
}

// mergeByName folds duplicate material names into one entry, summing
// volumes, fractions and widths. Output keeps first-appearance order.
func mergeByName(volumes []MaterialVolume) []MaterialVolume {
	if len(volumes) < 2 {
		return volumes
	}

	index := make(map[string]int, len(volumes))
	merged := make([]MaterialVolume, 0, len(volumes))
	for _, mv := range volumes {
		i, seen := index[mv.Name]
		if !seen {
			index[mv.Name] = len(merged)
			merged = append(merged, mv)
			continue
		}
		merged[i].Volume = addPtr(merged[i].Volume, mv.Volume)
		merged[i].Fraction = addPtr(merged[i].Fraction, mv.Fraction)
		merged[i].Width = addPtr(merged[i].Width, mv.Width)
	}
	return merged
}

func addPtr(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	sum := *a + *b
	return &sum
}

// validateFractions drops an allocation whose fraction sum strays beyond
// the tolerance. The names list survives so callers can still report
// which materials are present.
func validateFractions(res *MaterialResolution, totalVolume *float64) {
	if totalVolume == nil || *totalVolume == 0 {
		return
	}
	sum := 0.0
	defined := false
	for _, mv := range res.Volumes {
		if mv.Fraction != nil {
			defined = true
			sum += *mv.Fraction
		}
	}
	if !defined {
		return
	}
	res.TotalFraction = sum
	if math.Abs(sum-1.0) > FractionTolerance {
		res.Invalid = true
		res.Volumes = nil
	}
}

// RoundForDisplay trims material numbers to display precision: volumes
// and fractions to 5 digits, widths to 3.
func RoundForDisplay(volumes []MaterialVolume) []MaterialVolume {
	out := make([]MaterialVolume, len(volumes))
	for i, mv := range volumes {
		out[i] = MaterialVolume{
			Name:     mv.Name,
			Volume:   roundPtr(mv.Volume, 5),
			Fraction: roundPtr(mv.Fraction, 5),
			Width:    roundPtr(mv.Width, 3),
		}
	}
	return out
}
