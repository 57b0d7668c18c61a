package btf

import (
	"fmt"
	"log/slog"
)

// StrtabName returns the non-empty string table name of the type with the
// given id. Fails for anonymous types and kinds without a name.
func (s *Store) StrtabName(id TypeID) (string, error) {
	n, err := s.NodeByID(id)
	if err != nil {
		return "", err
	}
	name, err := s.Name(n.NameOff())
	if err != nil {
		return "", fmt.Errorf("type %d: %w", id, err)
	}
	return name, nil
}

// syntheticName composes a deterministic name for an anonymous node from
// its kind and id.
func syntheticName(n Node, id TypeID) string {
	return fmt.Sprintf("unnamed_%s_%d", n.Kind(), id)
}

// NamesForID returns all names of the type with the given id.
//
// Optionally, typedefs are used to derive alternative names. Only typedefs
// that reach the type without indirections lead to alternative names; a
// typedef naming "pointer to T" denotes a different conceptual type than T.
func (s *Store) NamesForID(id TypeID, tds *Typedefs) ([]string, error) {
	n, err := s.NodeByID(id)
	if err != nil {
		return nil, err
	}

	if n.Kind() == KindVoid {
		return []string{"void"}, nil
	}

	var names []string
	if name, err := s.Name(n.NameOff()); err == nil {
		names = append(names, name)
	} else {
		names = append(names, syntheticName(n, id))
	}

	if tds == nil {
		return names, nil
	}
	for _, td := range tds.Bk[id] {
		rt, ok := tds.Fw[td]
		if !ok {
			panic(fmt.Sprintf("btf: typedef index inconsistency: no forward entry for %d", td))
		}
		if rt.Path.HasIndirections() {
			slog.Debug("omitting typedef alias due to indirections", "id", id, "typedef", td)
			continue
		}
		name, err := s.StrtabName(td)
		if err != nil {
			panic(fmt.Sprintf("btf: typedef %d without name", td))
		}
		names = append(names, name)
	}

	return names, nil
}

// DisplayName returns a name for the resolved type.
//
// Named types return their name. Unnamed types try a naming typedef first
// and then fall back to a unique synthetic naming scheme.
func (rt *ResolvedType) DisplayName(s *Store) string {
	switch rt.Node.Kind() {
	case KindFuncProto:
		return "function"
	case KindVoid:
		return "void"
	}
	if name, err := s.StrtabName(rt.ID); err == nil {
		return name
	}
	if td, ok := rt.Path.NamingTypedef(); ok {
		name, err := s.StrtabName(td)
		if err != nil {
			panic(fmt.Sprintf("btf: naming typedef %d without name", td))
		}
		return name
	}
	return syntheticName(rt.Node, rt.ID)
}
