package extract

import (
	"github.com/louistrue/openBIM-service/internal/model"
)

// QuantitySet holds an element's resolved quantities in canonical units:
// volumes in m³, areas in m², lengths in mm. Nil means the quantity could
// not be resolved from any source; it is never forced to zero.
type QuantitySet struct {
	NetVolume   *float64 `json:"netVolume,omitempty"`
	GrossVolume *float64 `json:"grossVolume,omitempty"`
	NetArea     *float64 `json:"netArea,omitempty"`
	GrossArea   *float64 `json:"grossArea,omitempty"`
	Length      *float64 `json:"length,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
}

// TotalVolume returns the element volume used for material allocation:
// net if known, else gross, else nil.
func (q QuantitySet) TotalVolume() *float64 {
	if q.NetVolume != nil {
		return q.NetVolume
	}
	return q.GrossVolume
}

// quantityNames is the per-class table of record names each field may
// carry. Resolution tries names left to right.
type quantityNames struct {
	netVolume   []string
	grossVolume []string
	netArea     []string
	grossArea   []string
	length      []string
	width       []string
	height      []string
}

var defaultQuantityNames = quantityNames{
	netVolume:   []string{"NetVolume"},
	grossVolume: []string{"GrossVolume"},
	netArea:     []string{"NetArea", "NetSideArea"},
	grossArea:   []string{"GrossArea", "GrossSideArea"},
	length:      []string{"Length"},
	width:       []string{"Width", "Thickness"},
	height:      []string{"Height"},
}

// classQuantityNames overrides the record names for classes whose source
// schema names differ from the generic set. Unknown classes fall back to
// defaultQuantityNames plus generic geometry.
var classQuantityNames = map[string]quantityNames{
	"IfcWall": {
		netArea:   []string{"NetSideArea", "NetArea"},
		grossArea: []string{"GrossSideArea", "GrossArea"},
	},
	"IfcWallStandardCase": {
		netArea:   []string{"NetSideArea", "NetArea"},
		grossArea: []string{"GrossSideArea", "GrossArea"},
	},
	"IfcSlab": {
		netArea:   []string{"NetArea"},
		grossArea: []string{"GrossArea"},
		width:     []string{"Depth", "Width", "Thickness"},
	},
	"IfcDoor": {
		netArea: []string{"Area"},
		height:  []string{"Height", "OverallHeight"},
		width:   []string{"Width", "OverallWidth"},
	},
	"IfcWindow": {
		netArea: []string{"Area"},
		height:  []string{"Height", "OverallHeight"},
		width:   []string{"Width", "OverallWidth"},
	},
	"IfcBeam": {
		netArea:   []string{"NetSurfaceArea", "NetArea"},
		grossArea: []string{"GrossSurfaceArea", "GrossArea"},
	},
	"IfcColumn": {
		netArea:   []string{"NetSurfaceArea", "NetArea"},
		grossArea: []string{"GrossSurfaceArea", "GrossArea"},
	},
}

// namesFor merges the class override over the defaults.
func namesFor(class string) quantityNames {
	names := defaultQuantityNames
	override, ok := classQuantityNames[class]
	if !ok {
		return names
	}
	if override.netVolume != nil {
		names.netVolume = override.netVolume
	}
	if override.grossVolume != nil {
		names.grossVolume = override.grossVolume
	}
	if override.netArea != nil {
		names.netArea = override.netArea
	}
	if override.grossArea != nil {
		names.grossArea = override.grossArea
	}
	if override.length != nil {
		names.length = override.length
	}
	if override.width != nil {
		names.width = override.width
	}
	if override.height != nil {
		names.height = override.height
	}
	return names
}

// QuantityResolver resolves element quantities, preferring explicit
// quantity records, then common property sets, then geometry-derived
// values. Each field resolves independently; a failure on one never
// aborts the others.
type QuantityResolver struct {
	scales UnitScales
}

// NewQuantityResolver creates a resolver for one document's unit scales.
func NewQuantityResolver(scales UnitScales) *QuantityResolver {
	return &QuantityResolver{scales: scales}
}

// Resolve computes the full quantity set for one element.
func (r *QuantityResolver) Resolve(el *model.Element) QuantitySet {
	names := namesFor(el.Class)

	var q QuantitySet
	q.NetVolume = r.volume(el, names.netVolume)
	q.GrossVolume = r.volume(el, names.grossVolume)
	q.NetArea = r.area(el, names.netArea)
	q.GrossArea = r.area(el, names.grossArea)
	q.Length = r.length(el, names.length)
	q.Width = r.length(el, names.width)
	q.Height = r.length(el, names.height)

	// Geometry-derived fallbacks when neither records nor properties
	// produced a value. Geometry reports in document length units, so
	// these use the length-derived factors, not the declared volume and
	// area unit factors.
	if q.NetVolume == nil && q.GrossVolume == nil && el.Geometry != nil {
		if v, err := el.Geometry.Volume(); err == nil {
			scaled := v * r.scales.GeomVolume
			q.GrossVolume = &scaled
		}
	}
	if q.NetArea == nil && q.GrossArea == nil && el.Geometry != nil {
		if a, err := el.Geometry.SurfaceArea(); err == nil {
			scaled := a * r.scales.GeomArea
			q.GrossArea = &scaled
		}
	}

	return q
}

// volume resolves one volume field: explicit records (tolerating volume
// values carried on length records, as some authoring tools emit), then
// property fallback. Values convert to m³.
func (r *QuantityResolver) volume(el *model.Element, names []string) *float64 {
	for _, name := range names {
		for _, rec := range el.Quantities {
			if rec.Name != name {
				continue
			}
			if rec.Kind == model.QuantityVolume || rec.Kind == model.QuantityLength {
				v := rec.Value * r.scales.Volume
				return &v
			}
		}
	}
	if v := numericProperty(el, names...); v != nil {
		scaled := *v * r.scales.Volume
		return &scaled
	}
	return nil
}

// area resolves one area field to m².
func (r *QuantityResolver) area(el *model.Element, names []string) *float64 {
	for _, name := range names {
		for _, rec := range el.Quantities {
			if rec.Name == name && rec.Kind == model.QuantityArea {
				v := rec.Value * r.scales.Area
				return &v
			}
		}
	}
	if v := numericProperty(el, names...); v != nil {
		scaled := *v * r.scales.Area
		return &scaled
	}
	return nil
}

// length resolves one dimension field to mm.
func (r *QuantityResolver) length(el *model.Element, names []string) *float64 {
	for _, name := range names {
		for _, rec := range el.Quantities {
			if rec.Name == name && rec.Kind == model.QuantityLength {
				v := rec.Value * r.scales.Length
				return &v
			}
		}
	}
	if v := numericProperty(el, names...); v != nil {
		scaled := *v * r.scales.Length
		return &scaled
	}
	return nil
}
