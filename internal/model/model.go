// Package model defines the entity graph exchanged with the external IFC
// parsing engine. The engine parses the native document and exports a typed
// graph of building elements, spatial containers, materials and quantities;
// everything downstream of this package operates on that graph only.
package model

// Document is one parsed building model in declaration order.
type Document struct {
	Schema   string
	Project  Project
	Units    []UnitAssignment
	Storeys  []*Storey
	Spaces   []*Space
	Elements []*Element
}

// Project identifies the model's root context. The splitter copies this
// shell into every per-storey output so each stays independently valid.
type Project struct {
	GlobalID string
	Name     string
	Site     string
	Building string
}

// UnitKind discriminates the declared unit assignments.
type UnitKind string

const (
	UnitLength UnitKind = "LENGTHUNIT"
	UnitArea   UnitKind = "AREAUNIT"
	UnitVolume UnitKind = "VOLUMEUNIT"
)

// UnitAssignment is one declared engineering unit. SI units carry an
// optional prefix (MILLI, KILO, ...); conversion-based units carry an
// explicit factor to the SI base instead.
type UnitAssignment struct {
	Kind             UnitKind
	Name             string
	Prefix           string
	ConversionFactor float64
}

// Storey is one building level.
type Storey struct {
	ID        string
	GlobalID  string
	Name      string
	Elevation *float64
}

// Space is a sub-container nested under a storey. Elements declared in a
// space roll up to the space's storey for grouping purposes.
type Space struct {
	ID       string
	GlobalID string
	Name     string
	StoreyID string
}

// QuantityKind discriminates explicit quantity records.
type QuantityKind string

const (
	QuantityVolume QuantityKind = "volume"
	QuantityArea   QuantityKind = "area"
	QuantityLength QuantityKind = "length"
)

// Quantity is one explicit quantity record attached to an element, in the
// document's declared units. Names follow the source schema (NetVolume,
// GrossSideArea, Thickness, ...).
type Quantity struct {
	Kind  QuantityKind
	Name  string
	Value float64
}

// PropertySet is a named bag of element properties. Values decode to
// bool, float64 or string.
type PropertySet struct {
	Name       string
	Properties map[string]any
}

// MaterialKind discriminates the material association shapes.
type MaterialKind string

const (
	MaterialSingle         MaterialKind = "material"
	MaterialLayerSet       MaterialKind = "layer_set"
	MaterialConstituentSet MaterialKind = "constituent_set"
)

// MaterialAssociation is an element's material definition in one of the
// three source shapes: a single material, a layered set with relative
// thicknesses, or a constituent set with optional explicit shares.
type MaterialAssociation struct {
	Kind         MaterialKind
	Name         string
	Layers       []MaterialLayer
	Constituents []MaterialConstituent
}

// MaterialLayer is one layer of a layered material set. Thickness is in
// the document's declared length unit.
type MaterialLayer struct {
	Material  string
	Thickness float64
}

// MaterialConstituent is one member of a constituent set. Volume and
// Width are optional explicit shares in the document's declared units;
// nil means the share must be inferred or left undefined.
type MaterialConstituent struct {
	Name     string
	Material string
	Volume   *float64
	Width    *float64
}

// Element is one building component entity.
type Element struct {
	ID             string
	GlobalID       string
	Class          string
	PredefinedType string
	ObjectType     string
	Name           string
	ContainerID    string
	Quantities     []Quantity
	PropertySets   []PropertySet
	Material       *MaterialAssociation
	Geometry       Solid
}

// Solid is the geometry engine's handle to an element's native shape
// representation. Both queries may fail per shape; callers treat failures
// as "no geometric fallback available" for that field.
type Solid interface {
	// Volume returns the solid volume in cubic document length units.
	Volume() (float64, error)
	// SurfaceArea returns the total surface area in square document
	// length units.
	SurfaceArea() (float64, error)
}
