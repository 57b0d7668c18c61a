package btf

import (
	"errors"
	"fmt"
	"log/slog"
)

// maxResolveHops bounds chain walking. Well-formed BTF cannot cycle, so
// hitting the bound means the input is corrupt.
const maxResolveHops = 512

// ErrResolutionLoop indicates a type chain that did not reach a terminal
// node within the hop bound.
var ErrResolutionLoop = errors.New("btf: type chain exceeds hop bound")

// Step identifies a kind of resolution path entry.
type Step uint8

const (
	StepPointer Step = iota
	StepArray
	StepTypedef
)

// PathEntry is a relevant node encountered on the way to the terminal
// node. Qualifier nodes are not recorded.
type PathEntry struct {
	Step    Step
	Count   uint64 // array length, for StepArray
	Typedef TypeID // typedef id, for StepTypedef
}

// IsIndirection reports whether this entry is an indirection.
// Array and pointer entries are indirections.
func (e PathEntry) IsIndirection() bool {
	return e.Step != StepTypedef
}

// Path is the ordered list of relevant nodes walked between a start node
// and its terminal node, outermost first.
type Path []PathEntry

// PopFront removes and returns the first entry of the path.
func (p *Path) PopFront() (PathEntry, bool) {
	if len(*p) == 0 {
		return PathEntry{}, false
	}
	e := (*p)[0]
	*p = (*p)[1:]
	return e, true
}

// HasIndirections reports whether the path contains pointer or array
// entries.
func (p Path) HasIndirections() bool {
	for _, e := range p {
		if e.IsIndirection() {
			return true
		}
	}
	return false
}

// NamingTypedef returns the first typedef that has no indirections between
// itself and the terminal node.
func (p Path) NamingTypedef() (TypeID, bool) {
	i := len(p) - 1
	for i >= 0 && !p[i].IsIndirection() {
		i--
	}
	if i+1 >= len(p) {
		return 0, false
	}
	if first := p[i+1]; first.Step == StepTypedef {
		return first.Typedef, true
	}
	return 0, false
}

// ResolvedType pairs a terminal node and its id with the path that led
// there.
type ResolvedType struct {
	Path Path
	Node Node
	ID   TypeID
}

func (rt *ResolvedType) record(n Node, id TypeID) {
	switch t := n.(type) {
	case *ArrayNode:
		rt.Path = append(rt.Path, PathEntry{Step: StepArray, Count: t.Len()})
	case *PointerNode:
		rt.Path = append(rt.Path, PathEntry{Step: StepPointer})
	case *TypedefNode:
		rt.Path = append(rt.Path, PathEntry{Step: StepTypedef, Typedef: id})
	}
}

// Resolve starts at the given node and walks the chain to its terminal
// node, recording the semantically relevant steps along the way.
// A lookup failure mid-chain terminates the walk at the last resolvable
// node rather than failing.
func (s *Store) Resolve(id TypeID) (*ResolvedType, error) {
	n, err := s.NodeByID(id)
	if err != nil {
		return nil, err
	}

	rt := &ResolvedType{Node: n, ID: id}
	rt.record(n, id)

	for hops := 0; ; hops++ {
		if hops >= maxResolveHops {
			return nil, fmt.Errorf("%w: started at id %d", ErrResolutionLoop, id)
		}
		c, ok := rt.Node.(Chained)
		if !ok {
			return rt, nil
		}
		next, err := s.NodeByID(c.Target())
		if err != nil {
			return rt, nil
		}
		rt.Node = next
		rt.ID = c.Target()
		rt.record(next, rt.ID)
	}
}

// Typedefs is a processed view of all typedefs in the section.
type Typedefs struct {
	// Fw maps typedef ids to the terminal nodes they resolve to, including
	// the resolution path.
	Fw map[TypeID]*ResolvedType
	// Bk maps terminal ids to the typedef ids that resolve to them, in
	// ascending id order.
	Bk map[TypeID][]TypeID
}

// Partition is a disjoint classification of every node in the section into
// the categories the output profile distinguishes between, plus the
// typedef view. Id slices are in ascending order.
type Partition struct {
	UserIDs  []TypeID
	EnumIDs  []TypeID
	BaseIDs  []TypeID
	Typedefs *Typedefs
}

// PartitionGraph scans the whole section in ascending id order and routes
// every node into its category. The scan ends at the first unresolvable
// id; that is the expected terminator of a dense id space, not an error.
func (s *Store) PartitionGraph() (*Partition, error) {
	p := &Partition{
		Typedefs: &Typedefs{
			Fw: make(map[TypeID]*ResolvedType),
			Bk: make(map[TypeID][]TypeID),
		},
	}

	for id := TypeID(0); ; id++ {
		n, err := s.NodeByID(id)
		if err != nil {
			slog.Debug("section scan complete", "types", id)
			break
		}

		switch {
		case IsBase(n):
			p.BaseIDs = append(p.BaseIDs, id)
		case IsEnum(n):
			p.EnumIDs = append(p.EnumIDs, id)
		case IsUser(n):
			p.UserIDs = append(p.UserIDs, id)
		case IsTypedef(n):
			rt, err := s.Resolve(id)
			if err != nil {
				return nil, err
			}
			p.Typedefs.Fw[id] = rt
			p.Typedefs.Bk[rt.ID] = append(p.Typedefs.Bk[rt.ID], id)
		}
	}

	slog.Debug("id sets",
		"base", len(p.BaseIDs),
		"enum", len(p.EnumIDs),
		"user", len(p.UserIDs),
		"typedef", len(p.Typedefs.Fw))
	return p, nil
}
