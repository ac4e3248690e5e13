package extract

import (
	"context"
	"sort"

	"github.com/louistrue/openBIM-service/internal/model"
)

// Filter configures which elements and which record fields an extraction
// run produces. Exclusion flags omit fields from the emitted record; the
// underlying values are still computed when another field needs them.
type Filter struct {
	IncludeClasses            []string
	ExcludeProperties         bool
	ExcludeQuantities         bool
	ExcludeMaterials          bool
	ExcludeWidth              bool
	ExcludeConstituentVolumes bool
}

// includes reports whether a class passes the filter. An empty include
// list admits every class.
func (f Filter) includes(class string) bool {
	if len(f.IncludeClasses) == 0 {
		return true
	}
	for _, c := range f.IncludeClasses {
		if c == class {
			return true
		}
	}
	return false
}

// ElementRecord is one normalized output element. All quantities are in
// canonical units. Nil fields were either unresolvable or excluded by the
// filter configuration.
type ElementRecord struct {
	ID              string           `json:"id"`
	GlobalID        *string          `json:"globalId,omitempty"`
	Class           string           `json:"class"`
	PredefinedType  *string          `json:"predefinedType,omitempty"`
	ObjectType      *string          `json:"objectType,omitempty"`
	Name            *string          `json:"name,omitempty"`
	Level           *string          `json:"level,omitempty"`
	Quantities      *QuantitySet     `json:"quantities,omitempty"`
	Materials       []string         `json:"materials,omitempty"`
	MaterialVolumes []MaterialVolume `json:"materialVolumes,omitempty"`
	LoadBearing     *bool            `json:"loadBearing,omitempty"`
	IsExternal      *bool            `json:"isExternal,omitempty"`
}

// FractionWarning records an element whose material fractions failed the
// sum check and whose allocation was therefore dropped.
type FractionWarning struct {
	ElementID     string  `json:"element_id"`
	ElementClass  string  `json:"element_class"`
	TotalFraction float64 `json:"total_fraction"`
}

// Walker iterates one document's element graph in declaration order,
// resolving quantities, properties and materials per element. A walker is
// built per request and restarts only from the beginning; it keeps no
// cross-request cursor state.
type Walker struct {
	doc      *model.Document
	filter   Filter
	scales   UnitScales
	resolver *QuantityResolver
	elements []*model.Element
	levels   map[string]string
	warnings []FractionWarning
}

// NewWalker builds a walker over doc. The class filter applies up front
// so excluded elements never reach the resolvers.
func NewWalker(doc *model.Document, filter Filter) *Walker {
	scales := DeriveUnitScales(doc)
	w := &Walker{
		doc:      doc,
		filter:   filter,
		scales:   scales,
		resolver: NewQuantityResolver(scales),
		levels:   storeyLevels(doc),
	}
	for _, el := range doc.Elements {
		if filter.includes(el.Class) {
			w.elements = append(w.elements, el)
		}
	}
	return w
}

// storeyLevels maps container ids to storey names, resolving spaces to
// their parent storey.
func storeyLevels(doc *model.Document) map[string]string {
	levels := make(map[string]string, len(doc.Storeys)+len(doc.Spaces))
	byID := make(map[string]*model.Storey, len(doc.Storeys))
	for _, s := range doc.Storeys {
		byID[s.ID] = s
		levels[s.ID] = s.Name
	}
	for _, sp := range doc.Spaces {
		if storey, ok := byID[sp.StoreyID]; ok {
			levels[sp.ID] = storey.Name
		}
	}
	return levels
}

// Total returns the filtered element count, known before any resolution
// work runs.
func (w *Walker) Total() int {
	return len(w.elements)
}

// Scales exposes the document's unit conversion for response metadata.
func (w *Walker) Scales() UnitScales {
	return w.scales
}

// Classes returns the distinct element classes present after filtering,
// sorted for stable metadata output.
func (w *Walker) Classes() []string {
	seen := make(map[string]bool)
	var classes []string
	for _, el := range w.elements {
		if !seen[el.Class] {
			seen[el.Class] = true
			classes = append(classes, el.Class)
		}
	}
	sort.Strings(classes)
	return classes
}

// Warnings returns the fraction warnings collected so far during a walk.
func (w *Walker) Warnings() []FractionWarning {
	return w.warnings
}

// Walk resolves every filtered element in order, yielding records to fn.
// Cancellation is checked cooperatively between elements.
func (w *Walker) Walk(ctx context.Context, fn func(ElementRecord) error) error {
	return w.WalkRange(ctx, 0, len(w.elements), fn)
}

// WalkRange resolves only the elements in [start, end), so a paginated
// request does no work outside its page. Indexes are into the filtered
// sequence; callers clamp them via Paginate.
func (w *Walker) WalkRange(ctx context.Context, start, end int, fn func(ElementRecord) error) error {
	if start < 0 {
		start = 0
	}
	if end > len(w.elements) {
		end = len(w.elements)
	}
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(w.resolve(w.elements[i])); err != nil {
			return err
		}
	}
	return nil
}

// resolve builds the output record for one element, honoring the field
// exclusion flags after resolution.
func (w *Walker) resolve(el *model.Element) ElementRecord {
	rec := ElementRecord{
		ID:             el.ID,
		GlobalID:       optional(el.GlobalID),
		Class:          el.Class,
		PredefinedType: optional(el.PredefinedType),
		ObjectType:     optional(el.ObjectType),
		Name:           optional(el.Name),
	}
	if level, ok := w.levels[el.ContainerID]; ok && el.ContainerID != "" {
		rec.Level = &level
	}

	// Volume is needed for material fractions even when quantities are
	// excluded from output, so resolution always runs when materials are
	// requested.
	var quantities QuantitySet
	if !w.filter.ExcludeQuantities || !w.filter.ExcludeMaterials {
		quantities = w.resolver.Resolve(el)
	}
	if !w.filter.ExcludeQuantities {
		q := quantities
		q.NetVolume = roundPtr(q.NetVolume, 5)
		q.GrossVolume = roundPtr(q.GrossVolume, 5)
		q.NetArea = roundPtr(q.NetArea, 5)
		q.GrossArea = roundPtr(q.GrossArea, 5)
		q.Length = roundPtr(q.Length, 3)
		q.Width = roundPtr(q.Width, 3)
		q.Height = roundPtr(q.Height, 3)
		rec.Quantities = &q
	}

	if !w.filter.ExcludeProperties {
		props := ResolveCommonProperties(el)
		rec.LoadBearing = props.LoadBearing
		rec.IsExternal = props.IsExternal
	}

	if !w.filter.ExcludeMaterials && el.Material != nil {
		res := ResolveMaterials(el.Material, quantities.TotalVolume(), w.scales)
		rec.Materials = res.Names
		if res.Invalid {
			w.warnings = append(w.warnings, FractionWarning{
				ElementID:     el.ID,
				ElementClass:  el.Class,
				TotalFraction: res.TotalFraction,
			})
		}
		suppressed := w.filter.ExcludeConstituentVolumes && el.Material.Kind == model.MaterialConstituentSet
		if len(res.Volumes) > 0 && !suppressed {
			volumes := RoundForDisplay(res.Volumes)
			if w.filter.ExcludeWidth {
				for i := range volumes {
					volumes[i].Width = nil
				}
			}
			rec.MaterialVolumes = volumes
		}
	}

	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
