package extract

import (
	"strings"

	"github.com/louistrue/openBIM-service/internal/model"
)

// CommonProperties are the properties read from an element's common
// property set. Nil means the property was not present; absence is never
// reported as false.
type CommonProperties struct {
	LoadBearing *bool
	IsExternal  *bool
	FireRating  *string
}

// commonPsetNames returns the property set lookup order for a class:
// the class-specific common set first, then the generic fallback.
func commonPsetNames(class string) []string {
	short := strings.TrimPrefix(class, "Ifc")
	return []string{"Pset_" + short + "Common", "Pset_ElementCommon"}
}

// elementProperty looks a property up by name across the element's common
// property sets, class-specific set first.
func elementProperty(el *model.Element, name string) (any, bool) {
	for _, psetName := range commonPsetNames(el.Class) {
		for _, ps := range el.PropertySets {
			if ps.Name != psetName {
				continue
			}
			if v, ok := ps.Properties[name]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

// ResolveCommonProperties extracts the common property set values for an
// element. Each property resolves independently; a missing or mistyped
// value leaves its field nil.
func ResolveCommonProperties(el *model.Element) CommonProperties {
	var props CommonProperties
	if v, ok := elementProperty(el, "LoadBearing"); ok {
		if b, ok := asBool(v); ok {
			props.LoadBearing = &b
		}
	}
	if v, ok := elementProperty(el, "IsExternal"); ok {
		if b, ok := asBool(v); ok {
			props.IsExternal = &b
		}
	}
	if v, ok := elementProperty(el, "FireRating"); ok {
		if s, ok := v.(string); ok && s != "" {
			props.FireRating = &s
		}
	}
	return props
}

// numericProperty resolves a property as a number, tolerating bool-free
// JSON decodings (float64) only.
func numericProperty(el *model.Element, names ...string) *float64 {
	for _, name := range names {
		v, ok := elementProperty(el, name)
		if !ok {
			continue
		}
		if f, ok := asFloat(v); ok {
			return &f
		}
	}
	return nil
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
