package jsonschema

// Merge combines two schemas field by field. Properties are unioned; when
// the same field was observed with two different types, the more recently
// observed type wins for that field (last write wins). Nested objects
// recurse, arrays merge their item schemas.
//
// Merge never mutates its arguments; the result is always a fresh value.
func Merge(old, updated *Schema) *Schema {
	if old == nil {
		return updated.Clone()
	}
	if updated == nil {
		return old.Clone()
	}

	// Type conflict: the newest observation replaces the field wholesale.
	if old.Type != updated.Type {
		return updated.Clone()
	}

	out := updated.Clone()
	if out.Title == "" {
		out.Title = old.Title
	}

	switch old.Type {
	case TypeObject:
		if out.Properties == nil {
			out.Properties = make(map[string]*Schema, len(old.Properties))
		}
		for name, prop := range old.Properties {
			if existing, ok := out.Properties[name]; ok {
				out.Properties[name] = Merge(prop, existing)
			} else {
				out.Properties[name] = prop.Clone()
			}
		}
	case TypeArray:
		out.Items = Merge(old.Items, updated.Items)
	}

	return out
}

// Reconcile applies a reconciliation mode to an existing and a newly
// inferred schema, returning the schema that should be stored. Override
// replaces the old schema wholesale; merge structurally unions them.
func Reconcile(mode Mode, existing, inferred *Schema) *Schema {
	if mode == ModeMerge {
		return Merge(existing, inferred)
	}
	return inferred.Clone()
}

// Mode selects how a newly inferred schema is reconciled against the
// stored one.
type Mode string

const (
	// ModeOverride replaces the stored schema wholesale (default).
	ModeOverride Mode = "override"
	// ModeMerge deep-merges the stored and inferred schemas.
	ModeMerge Mode = "merge"
)

// ParseMode maps a wire value to a Mode, defaulting to override.
func ParseMode(v string) Mode {
	if v == string(ModeMerge) {
		return ModeMerge
	}
	return ModeOverride
}
