package isf

import (
	"fmt"
	"log/slog"
)

// isDefined reports whether the terminal of the descriptor references a
// type the profile actually defines. Struct and union references must
// match the kind of the defined type, not just the name.
func (d *Document) isDefined(t *TypeDescriptor) bool {
	rt := t.Terminal()
	switch rt.Kind {
	case DescrBase:
		_, ok := d.BaseTypes[rt.Name]
		return ok
	case DescrEnum:
		_, ok := d.Enums[rt.Name]
		return ok
	case DescrStruct:
		u, ok := d.UserTypes[rt.Name]
		return ok && u.Kind == KindStruct
	case DescrUnion:
		u, ok := d.UserTypes[rt.Name]
		return ok && u.Kind == KindUnion
	case DescrFunction:
		return true
	}
	panic(fmt.Sprintf("isf: descriptor resolution reached non-terminal %q", rt.Kind))
}

// FixSymbolTypes rewrites symbols whose type is not defined in the
// profile to void.
//
// Symbol types come from a database rather than the type graph, so a
// kernel build can lack some of the referenced types. The repair always
// completes; the returned error is a summary for the caller to report.
func (d *Document) FixSymbolTypes() error {
	problematic := make(map[string]bool)
	missing := make(map[string]bool)

	for name, sym := range d.Symbols {
		if d.isDefined(sym.Type) {
			continue
		}
		slog.Warn("symbol references non-present type",
			"symbol", name, "type", sym.Type)
		missing[sym.Type.String()] = true
		problematic[name] = true
	}

	if len(problematic) == 0 {
		slog.Debug("all types referenced by symbols are present")
		return nil
	}

	slog.Error("symbols reference missing types",
		"symbols", len(problematic), "types", len(missing))
	for name := range problematic {
		d.Symbols[name].Type = NewVoid()
	}
	return fmt.Errorf("isf: %d symbols referenced missing types", len(problematic))
}

// CheckUserTypes verifies that every type referenced by a field of a user
// type is defined in the profile. Diagnostic only, the profile is not
// modified.
func (d *Document) CheckUserTypes() error {
	problematic := make(map[string][]string)
	undefined := make(map[string]bool)
	affected := 0

	for name, ut := range d.UserTypes {
		var fields []string
		for fieldName, field := range ut.Fields {
			if d.isDefined(field.Type) {
				continue
			}
			rt := field.Type.Terminal()
			slog.Warn("field has undefined type",
				"owner", fmt.Sprintf("%s %s", ut.Kind, name),
				"field", fieldName,
				"type", rt)
			undefined[rt.String()] = true
			fields = append(fields, fieldName)
		}
		if len(fields) > 0 {
			problematic[fmt.Sprintf("%s %s", ut.Kind, name)] = fields
			affected += len(fields)
		}
	}

	if len(problematic) == 0 {
		slog.Debug("all types referenced by user types are present")
		return nil
	}

	slog.Error("user types reference undefined types",
		"types", len(problematic),
		"undefined", len(undefined),
		"fields", affected)
	return fmt.Errorf("isf: %d user types referenced undefined types", len(problematic))
}
