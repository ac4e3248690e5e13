package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec errors.
var (
	ErrEmptyDocument = errors.New("document has no elements and no storeys")
	ErrMissingID     = errors.New("element missing id")
	ErrMissingClass  = errors.New("element missing class")
)

// BoxSolid is a rectangular shape representation. The geometry engine
// emits it for elements whose native shape is a simple extrusion.
type BoxSolid struct {
	Length float64
	Width  float64
	Height float64
}

// Volume returns length * width * height.
func (b BoxSolid) Volume() (float64, error) {
	if b.Length <= 0 || b.Width <= 0 || b.Height <= 0 {
		return 0, errors.New("box solid has a non-positive dimension")
	}
	return b.Length * b.Width * b.Height, nil
}

// SurfaceArea returns the total area of all six faces.
func (b BoxSolid) SurfaceArea() (float64, error) {
	if b.Length <= 0 || b.Width <= 0 || b.Height <= 0 {
		return 0, errors.New("box solid has a non-positive dimension")
	}
	return 2 * (b.Length*b.Width + b.Length*b.Height + b.Width*b.Height), nil
}

// BrepSolid carries measurements the geometry engine pre-computed from a
// boundary representation. A nil field means the query failed upstream.
type BrepSolid struct {
	SolidVolume *float64
	FaceArea    *float64
}

// Volume returns the pre-computed solid volume.
func (b BrepSolid) Volume() (float64, error) {
	if b.SolidVolume == nil {
		return 0, errors.New("brep solid has no volume measurement")
	}
	return *b.SolidVolume, nil
}

// SurfaceArea returns the pre-computed face area.
func (b BrepSolid) SurfaceArea() (float64, error) {
	if b.FaceArea == nil {
		return 0, errors.New("brep solid has no face area measurement")
	}
	return *b.FaceArea, nil
}

// Wire DTOs. The parsing engine exports the graph as a single JSON
// document with these shapes.

type documentDTO struct {
	Schema   string              `json:"schema,omitempty"`
	Project  projectDTO          `json:"project"`
	Units    []unitAssignmentDTO `json:"units,omitempty"`
	Storeys  []storeyDTO         `json:"storeys,omitempty"`
	Spaces   []spaceDTO          `json:"spaces,omitempty"`
	Elements []elementDTO        `json:"elements"`
}

type projectDTO struct {
	GlobalID string `json:"global_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Site     string `json:"site,omitempty"`
	Building string `json:"building,omitempty"`
}

type unitAssignmentDTO struct {
	Kind             string  `json:"kind"`
	Name             string  `json:"name"`
	Prefix           string  `json:"prefix,omitempty"`
	ConversionFactor float64 `json:"conversion_factor,omitempty"`
}

type storeyDTO struct {
	ID        string   `json:"id"`
	GlobalID  string   `json:"global_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Elevation *float64 `json:"elevation,omitempty"`
}

type spaceDTO struct {
	ID       string `json:"id"`
	GlobalID string `json:"global_id,omitempty"`
	Name     string `json:"name,omitempty"`
	StoreyID string `json:"storey_id,omitempty"`
}

type elementDTO struct {
	ID             string           `json:"id"`
	GlobalID       string           `json:"global_id,omitempty"`
	Class          string           `json:"class"`
	PredefinedType string           `json:"predefined_type,omitempty"`
	ObjectType     string           `json:"object_type,omitempty"`
	Name           string           `json:"name,omitempty"`
	ContainerID    string           `json:"container_id,omitempty"`
	Quantities     []quantityDTO    `json:"quantities,omitempty"`
	PropertySets   []propertySetDTO `json:"property_sets,omitempty"`
	Material       *materialDTO     `json:"material,omitempty"`
	Geometry       *geometryDTO     `json:"geometry,omitempty"`
}

type quantityDTO struct {
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type propertySetDTO struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

type materialDTO struct {
	Kind         string                   `json:"kind"`
	Name         string                   `json:"name,omitempty"`
	Layers       []materialLayerDTO       `json:"layers,omitempty"`
	Constituents []materialConstituentDTO `json:"constituents,omitempty"`
}

type materialLayerDTO struct {
	Material  string  `json:"material"`
	Thickness float64 `json:"thickness"`
}

type materialConstituentDTO struct {
	Name     string   `json:"name,omitempty"`
	Material string   `json:"material"`
	Volume   *float64 `json:"volume,omitempty"`
	Width    *float64 `json:"width,omitempty"`
}

type geometryDTO struct {
	Kind        string   `json:"kind"`
	Length      float64  `json:"length,omitempty"`
	Width       float64  `json:"width,omitempty"`
	Height      float64  `json:"height,omitempty"`
	SolidVolume *float64 `json:"solid_volume,omitempty"`
	FaceArea    *float64 `json:"face_area,omitempty"`
}

// DecodeDocument reads one exported entity graph from r.
func DecodeDocument(r io.Reader) (*Document, error) {
	var dto documentDTO
	dec := json.NewDecoder(r)
	if err := dec.Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	doc := &Document{
		Schema: dto.Schema,
		Project: Project{
			GlobalID: dto.Project.GlobalID,
			Name:     dto.Project.Name,
			Site:     dto.Project.Site,
			Building: dto.Project.Building,
		},
	}

	for _, u := range dto.Units {
		doc.Units = append(doc.Units, UnitAssignment{
			Kind:             UnitKind(u.Kind),
			Name:             u.Name,
			Prefix:           u.Prefix,
			ConversionFactor: u.ConversionFactor,
		})
	}

	for _, s := range dto.Storeys {
		doc.Storeys = append(doc.Storeys, &Storey{
			ID:        s.ID,
			GlobalID:  s.GlobalID,
			Name:      s.Name,
			Elevation: s.Elevation,
		})
	}

	for _, s := range dto.Spaces {
		doc.Spaces = append(doc.Spaces, &Space{
			ID:       s.ID,
			GlobalID: s.GlobalID,
			Name:     s.Name,
			StoreyID: s.StoreyID,
		})
	}

	for i, e := range dto.Elements {
		el, err := decodeElement(e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		doc.Elements = append(doc.Elements, el)
	}

	if len(doc.Elements) == 0 && len(doc.Storeys) == 0 {
		return nil, ErrEmptyDocument
	}

	return doc, nil
}

func decodeElement(e elementDTO) (*Element, error) {
	if e.ID == "" {
		return nil, ErrMissingID
	}
	if e.Class == "" {
		return nil, ErrMissingClass
	}

	el := &Element{
		ID:             e.ID,
		GlobalID:       e.GlobalID,
		Class:          e.Class,
		PredefinedType: e.PredefinedType,
		ObjectType:     e.ObjectType,
		Name:           e.Name,
		ContainerID:    e.ContainerID,
	}

	for _, q := range e.Quantities {
		el.Quantities = append(el.Quantities, Quantity{
			Kind:  QuantityKind(q.Kind),
			Name:  q.Name,
			Value: q.Value,
		})
	}

	for _, ps := range e.PropertySets {
		el.PropertySets = append(el.PropertySets, PropertySet{
			Name:       ps.Name,
			Properties: ps.Properties,
		})
	}

	if e.Material != nil {
		m := &MaterialAssociation{
			Kind: MaterialKind(e.Material.Kind),
			Name: e.Material.Name,
		}
		for _, l := range e.Material.Layers {
			m.Layers = append(m.Layers, MaterialLayer{
				Material:  l.Material,
				Thickness: l.Thickness,
			})
		}
		for _, c := range e.Material.Constituents {
			m.Constituents = append(m.Constituents, MaterialConstituent{
				Name:     c.Name,
				Material: c.Material,
				Volume:   c.Volume,
				Width:    c.Width,
			})
		}
		el.Material = m
	}

	if e.Geometry != nil {
		switch e.Geometry.Kind {
		case "box":
			el.Geometry = BoxSolid{
				Length: e.Geometry.Length,
				Width:  e.Geometry.Width,
				Height: e.Geometry.Height,
			}
		case "brep":
			el.Geometry = BrepSolid{
				SolidVolume: e.Geometry.SolidVolume,
				FaceArea:    e.Geometry.FaceArea,
			}
		default:
			return nil, fmt.Errorf("unknown geometry kind %q", e.Geometry.Kind)
		}
	}

	return el, nil
}

// EncodeDocument writes doc to w in the wire format DecodeDocument reads.
// The splitter uses it to emit self-contained per-storey documents.
func EncodeDocument(w io.Writer, doc *Document) error {
	dto := documentDTO{
		Schema: doc.Schema,
		Project: projectDTO{
			GlobalID: doc.Project.GlobalID,
			Name:     doc.Project.Name,
			Site:     doc.Project.Site,
			Building: doc.Project.Building,
		},
	}

	for _, u := range doc.Units {
		dto.Units = append(dto.Units, unitAssignmentDTO{
			Kind:             string(u.Kind),
			Name:             u.Name,
			Prefix:           u.Prefix,
			ConversionFactor: u.ConversionFactor,
		})
	}

	for _, s := range doc.Storeys {
		dto.Storeys = append(dto.Storeys, storeyDTO{
			ID:        s.ID,
			GlobalID:  s.GlobalID,
			Name:      s.Name,
			Elevation: s.Elevation,
		})
	}

	for _, s := range doc.Spaces {
		dto.Spaces = append(dto.Spaces, spaceDTO{
			ID:       s.ID,
			GlobalID: s.GlobalID,
			Name:     s.Name,
			StoreyID: s.StoreyID,
		})
	}

	for _, el := range doc.Elements {
		dto.Elements = append(dto.Elements, encodeElement(el))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dto); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return nil
}

func encodeElement(el *Element) elementDTO {
	e := elementDTO{
		ID:             el.ID,
		GlobalID:       el.GlobalID,
		Class:          el.Class,
		PredefinedType: el.PredefinedType,
		ObjectType:     el.ObjectType,
		Name:           el.Name,
		ContainerID:    el.ContainerID,
	}

	for _, q := range el.Quantities {
		e.Quantities = append(e.Quantities, quantityDTO{
			Kind:  string(q.Kind),
			Name:  q.Name,
			Value: q.Value,
		})
	}

	for _, ps := range el.PropertySets {
		e.PropertySets = append(e.PropertySets, propertySetDTO{
			Name:       ps.Name,
			Properties: ps.Properties,
		})
	}

	if el.Material != nil {
		m := &materialDTO{
			Kind: string(el.Material.Kind),
			Name: el.Material.Name,
		}
		for _, l := range el.Material.Layers {
			m.Layers = append(m.Layers, materialLayerDTO{
				Material:  l.Material,
				Thickness: l.Thickness,
			})
		}
		for _, c := range el.Material.Constituents {
			m.Constituents = append(m.Constituents, materialConstituentDTO{
				Name:     c.Name,
				Material: c.Material,
				Volume:   c.Volume,
				Width:    c.Width,
			})
		}
		e.Material = m
	}

	switch g := el.Geometry.(type) {
	case BoxSolid:
		e.Geometry = &geometryDTO{
			Kind:   "box",
			Length: g.Length,
			Width:  g.Width,
			Height: g.Height,
		}
	case BrepSolid:
		e.Geometry = &geometryDTO{
			Kind:        "brep",
			SolidVolume: g.SolidVolume,
			FaceArea:    g.FaceArea,
		}
	}

	return e
}
