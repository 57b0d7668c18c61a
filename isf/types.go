package isf

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/skdltmxn/btf2json/internal/btf"
)

// Errors
var (
	ErrNoEnumBase  = errors.New("isf: cannot find base type for enum")
	ErrNotBaseType = errors.New("isf: type cannot be converted to a base type")
	ErrNotUserType = errors.New("isf: type is not a struct or union")
)

// BaseKind is the category of an ISF base type.
type BaseKind string

const (
	BaseVoid  BaseKind = "void"
	BaseInt   BaseKind = "int"
	BaseFloat BaseKind = "float"
	BaseChar  BaseKind = "char"
	BaseBool  BaseKind = "bool"
)

// Endian is the serialized byte order of a base type.
type Endian string

const (
	Little Endian = "little"
	Big    Endian = "big"
)

// Base is an ISF `element_base_type`.
type Base struct {
	Size   uint8    `json:"size"`
	Signed bool     `json:"signed"`
	Kind   BaseKind `json:"kind"`
	Endian Endian   `json:"endian"`
}

// newPointerBase synthesizes the "pointer"-named base type the output
// format expects to exist alongside true integer types.
func newPointerBase(endian Endian, pointerSize uint8) *Base {
	return &Base{
		Size:   pointerSize,
		Signed: false,
		Kind:   BaseInt,
		Endian: endian,
	}
}

// baseKindOf derives the base-type category from the concrete node
// variant.
func baseKindOf(n btf.Node) (BaseKind, error) {
	switch t := n.(type) {
	case btf.VoidNode:
		return BaseVoid, nil
	case *btf.FloatNode:
		return BaseFloat, nil
	case *btf.IntNode:
		if t.IsChar() {
			return BaseChar, nil
		}
		if t.IsBool() {
			return BaseBool, nil
		}
		return BaseInt, nil
	}
	return "", fmt.Errorf("%w: kind %s", ErrNotBaseType, n.Kind())
}

// newBase builds a base entry from a terminal node.
func newBase(n btf.Node, endian Endian) (*Base, error) {
	kind, err := baseKindOf(n)
	if err != nil {
		return nil, err
	}
	signed, ok := btf.NodeSigned(n)
	if !ok {
		return nil, fmt.Errorf("%w: kind %s has no signedness", ErrNotBaseType, n.Kind())
	}
	return &Base{
		Size:   uint8(btf.NodeSize(n)),
		Signed: signed,
		Kind:   kind,
		Endian: endian,
	}, nil
}

// Enum is an ISF `element_enum`.
type Enum struct {
	Size uint8 `json:"size"`
	// Base names the integer base type the enum is represented as.
	Base string `json:"base"`
	// Constants are widened to big integers so unsigned 64-bit
	// enumerators serialize without overflow.
	Constants map[string]*big.Int `json:"constants"`
}

// newEnum builds an enum entry. The base reference is found by searching
// the already-built base entries, in name order, for one matching the
// enum's size and signedness; an enum without a matching integer base
// type cannot be represented.
func newEnum(store *btf.Store, n btf.Node, baseTypes map[string]*Base) (*Enum, error) {
	e, ok := n.(btf.EnumLike)
	if !ok {
		return nil, fmt.Errorf("isf: kind %s is not an enum", n.Kind())
	}
	size := uint8(e.ByteSize())
	signed := e.Signed()

	names := make([]string, 0, len(baseTypes))
	for name := range baseTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	base := ""
	for _, name := range names {
		b := baseTypes[name]
		if b.Size == size && b.Signed == signed && b.Kind == BaseInt {
			base = name
			break
		}
	}
	if base == "" {
		return nil, fmt.Errorf("%w: size %d, signed %t", ErrNoEnumBase, size, signed)
	}

	constants := make(map[string]*big.Int, len(e.Values()))
	for _, v := range e.Values() {
		name, err := store.Name(v.NameOff)
		if err != nil {
			panic(fmt.Sprintf("isf: unnamed enum member in %s", n.Kind()))
		}
		constants[name] = v.Value
	}

	return &Enum{Size: size, Base: base, Constants: constants}, nil
}

// UserKind distinguishes struct from union entries.
type UserKind string

const (
	KindStruct UserKind = "struct"
	KindUnion  UserKind = "union"
)

// Field is an ISF `field`.
type Field struct {
	Type      *TypeDescriptor `json:"type"`
	Offset    uint64          `json:"offset"`
	Anonymous bool            `json:"anonymous"`
}

// User is an ISF `element_user_type`.
type User struct {
	Kind   UserKind          `json:"kind"`
	Size   uint64            `json:"size"`
	Fields map[string]*Field `json:"fields"`
}

// newUser builds a user-type entry from a struct or union node.
func newUser(store *btf.Store, id btf.TypeID, n btf.Node) (*User, error) {
	hm, ok := n.(btf.HasMembers)
	if !ok {
		return nil, fmt.Errorf("%w: kind %s", ErrNotUserType, n.Kind())
	}

	kind := KindStruct
	if n.Kind() == btf.KindUnion {
		kind = KindUnion
	}

	fields := make(map[string]*Field, len(hm.Members()))
	for _, m := range hm.Members() {
		name, err := store.Name(m.NameOff)
		if err != nil {
			name = fmt.Sprintf("unnamed_member_%d", m.Index)
		}
		fields[name] = newField(store, id, name, m)
	}

	return &User{Kind: kind, Size: btf.NodeSize(n), Fields: fields}, nil
}

// newField builds a field entry for a single member.
func newField(store *btf.Store, owner btf.TypeID, name string, m btf.Member) *Field {
	rt, err := store.Resolve(m.Type)
	if err != nil {
		panic(fmt.Sprintf("isf: member %d::%s without type information: %v", owner, name, err))
	}
	displayName := rt.DisplayName(store)

	return &Field{
		Type:      buildDescriptor(rt, displayName, m, owner, true),
		Offset:    m.ByteOffset(),
		Anonymous: m.IsAnon(),
	}
}

// buildDescriptor converts a resolved member type into the recursive
// descriptor grammar by peeling the resolution path into nested wrappers.
//
// The bitfield wrapper is one-shot: it is consumed at the first terminal
// emission and never re-applied, no matter how many typedef hops sit
// between the member and its terminal type.
func buildDescriptor(rt *btf.ResolvedType, name string, m btf.Member, owner btf.TypeID, handleBitfield bool) *TypeDescriptor {
	if e, ok := rt.Path.PopFront(); ok {
		switch e.Step {
		case btf.StepPointer:
			return &TypeDescriptor{
				Kind:    DescrPointer,
				Subtype: buildDescriptor(rt, name, m, owner, handleBitfield),
			}
		case btf.StepArray:
			return &TypeDescriptor{
				Kind:    DescrArray,
				Count:   e.Count,
				Subtype: buildDescriptor(rt, name, m, owner, handleBitfield),
			}
		default: // typedef: no structural wrapper, naming already resolved
			return buildDescriptor(rt, name, m, owner, handleBitfield)
		}
	}

	if m.IsBitfield() && handleBitfield {
		return &TypeDescriptor{
			Kind:        DescrBitfield,
			BitPosition: m.BitPosition(),
			BitLength:   m.BitfieldSize,
			Subtype:     buildDescriptor(rt, name, m, owner, false),
		}
	}

	switch t := rt.Node.(type) {
	case *btf.UnionNode:
		return &TypeDescriptor{Kind: DescrUnion, Name: name}
	case *btf.StructNode:
		return &TypeDescriptor{Kind: DescrStruct, Name: name}
	case *btf.FwdNode:
		kind := DescrStruct
		if t.IsUnion() {
			kind = DescrUnion
		}
		slog.Info("type from fwd declaration will likely not be present",
			"owner", owner, "member", name, "kind", kind, "name", name)
		return &TypeDescriptor{Kind: kind, Name: name}
	case *btf.EnumNode, *btf.Enum64Node:
		return &TypeDescriptor{Kind: DescrEnum, Name: name}
	case *btf.FuncProtoNode:
		return &TypeDescriptor{Kind: DescrFunction}
	}
	if btf.IsBase(rt.Node) {
		return &TypeDescriptor{Kind: DescrBase, Name: name}
	}
	panic(fmt.Sprintf("isf: unable to construct type descriptor for terminal kind %s", rt.Node.Kind()))
}
