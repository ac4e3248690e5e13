// Package extract implements the element quantity and material extraction
// pipeline: unit normalization, per-element quantity resolution, material
// layer allocation, filtered graph walking, pagination, progress emission
// and storey splitting.
package extract

import (
	"math"

	"github.com/louistrue/openBIM-service/internal/model"
)

// Canonical unit display names reported in response metadata. All output
// quantities are normalized to these regardless of the document's declared
// units: lengths in millimetres, areas in square metres, volumes in cubic
// metres.
const (
	CanonicalLengthName = "MILLIMETRE"
	CanonicalAreaName   = "METRE²"
	CanonicalVolumeName = "METRE³"
)

// UnitNames carries the canonical display names for one extraction run.
type UnitNames struct {
	Length string `json:"length"`
	Area   string `json:"area"`
	Volume string `json:"volume"`
}

// UnitScales holds the scalar conversion factors from the document's
// declared units to the canonical units. Factors are applied exactly once,
// at the point of extraction, never cumulatively.
type UnitScales struct {
	// Length converts declared length units to millimetres.
	Length float64
	// Area converts declared area units to square metres.
	Area float64
	// Volume converts declared volume units to cubic metres.
	Volume float64
	// GeomArea converts squared document lengths to square metres.
	// Geometry engines report in length units, so an independently
	// declared AREAUNIT never applies to them.
	GeomArea float64
	// GeomVolume converts cubed document lengths to cubic metres.
	GeomVolume float64
	// Assumed is set when the document declared no usable length unit
	// and values were treated as already canonical.
	Assumed bool
}

// Names returns the canonical unit names for response metadata.
func (UnitScales) Names() UnitNames {
	return UnitNames{
		Length: CanonicalLengthName,
		Area:   CanonicalAreaName,
		Volume: CanonicalVolumeName,
	}
}

// SI prefix factors relative to the base unit.
var prefixFactors = map[string]float64{
	"EXA":   1e18,
	"PETA":  1e15,
	"TERA":  1e12,
	"GIGA":  1e9,
	"MEGA":  1e6,
	"KILO":  1e3,
	"HECTO": 1e2,
	"DECA":  1e1,
	"DECI":  1e-1,
	"CENTI": 1e-2,
	"MILLI": 1e-3,
	"MICRO": 1e-6,
	"NANO":  1e-9,
	"PICO":  1e-12,
	"FEMTO": 1e-15,
	"ATTO":  1e-18,
}

// DeriveUnitScales computes the conversion factors for one document from
// its declared unit assignments. Area and volume fall back to the square
// and cube of the length factor when not declared independently.
func DeriveUnitScales(doc *model.Document) UnitScales {
	var length, area, volume *model.UnitAssignment
	for i := range doc.Units {
		u := &doc.Units[i]
		switch u.Kind {
		case model.UnitLength:
			length = u
		case model.UnitArea:
			area = u
		case model.UnitVolume:
			volume = u
		}
	}

	scales := UnitScales{Length: 1, Area: 1, Volume: 1}

	lengthMetres := 1.0
	if length == nil {
		scales.Assumed = true
	} else {
		lengthMetres = baseFactor(length)
	}

	// Canonical length is millimetres.
	scales.Length = lengthMetres * 1000
	scales.GeomArea = math.Pow(lengthMetres, 2)
	scales.GeomVolume = math.Pow(lengthMetres, 3)

	if area != nil {
		scales.Area = baseFactor(area)
	} else {
		scales.Area = math.Pow(lengthMetres, 2)
	}

	if volume != nil {
		scales.Volume = baseFactor(volume)
	} else {
		scales.Volume = math.Pow(lengthMetres, 3)
	}

	return scales
}

// baseFactor returns the factor from one assignment to its SI base unit
// (metres, square metres or cubic metres).
func baseFactor(u *model.UnitAssignment) float64 {
	factor := 1.0
	if u.Prefix != "" {
		if f, ok := prefixFactors[u.Prefix]; ok {
			factor *= f
		}
	}
	if u.ConversionFactor != 0 {
		factor *= u.ConversionFactor
	}
	return factor
}

// round trims v to the given number of decimal digits. Used for display
// values only; summation checks run on unrounded numbers.
func round(v float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}

// roundPtr rounds through a nullable value.
func roundPtr(v *float64, digits int) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, digits)
	return &r
}
