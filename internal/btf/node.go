// Package btf provides parsing and resolution of BTF type sections.
package btf

import "math/big"

// TypeID is a reference to a type in the BTF type section.
// ID 0 is the implicit void type; real records are numbered from 1 in the
// order they appear in the section.
type TypeID uint32

// Kind identifies the category of a BTF type record.
type Kind uint8

// BTF record kinds (BTF_KIND_*)
const (
	KindVoid      Kind = 0
	KindInt       Kind = 1
	KindPointer   Kind = 2
	KindArray     Kind = 3
	KindStruct    Kind = 4
	KindUnion     Kind = 5
	KindEnum      Kind = 6
	KindFwd       Kind = 7
	KindTypedef   Kind = 8
	KindVolatile  Kind = 9
	KindConst     Kind = 10
	KindRestrict  Kind = 11
	KindFunc      Kind = 12
	KindFuncProto Kind = 13
	KindVar       Kind = 14
	KindDataSec   Kind = 15
	KindFloat     Kind = 16
	KindDeclTag   Kind = 17
	KindTypeTag   Kind = 18
	KindEnum64    Kind = 19
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindPointer:
		return "ptr"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindFwd:
		return "fwd"
	case KindTypedef:
		return "typedef"
	case KindVolatile:
		return "volatile"
	case KindConst:
		return "const"
	case KindRestrict:
		return "restrict"
	case KindFunc:
		return "func"
	case KindFuncProto:
		return "func_proto"
	case KindVar:
		return "var"
	case KindDataSec:
		return "datasec"
	case KindFloat:
		return "float"
	case KindDeclTag:
		return "decl_tag"
	case KindTypeTag:
		return "type_tag"
	case KindEnum64:
		return "enum64"
	default:
		return "unknown"
	}
}

// Node is a parsed BTF type record.
type Node interface {
	// Kind returns the record kind.
	Kind() Kind

	// NameOff returns the string table offset of the record name.
	// Zero means the record is anonymous.
	NameOff() uint32
}

// Chained is implemented by nodes that reference another node and are
// traversed during type resolution. Arrays chain to their element type,
// functions to their prototype, everything else to its target.
type Chained interface {
	Node
	Target() TypeID
}

// Sized is implemented by nodes with a known byte size.
type Sized interface {
	Node
	ByteSize() uint32
}

// HasMembers is implemented by the two record kinds that carry members
// (structs and unions).
type HasMembers interface {
	Node
	Members() []Member
}

// EnumLike is implemented by the two enum record kinds. Values are widened
// to big integers so unsigned 64-bit enumerators survive unchanged.
type EnumLike interface {
	Node
	ByteSize() uint32
	Signed() bool
	Values() []EnumValue
}

// EnumValue is a single enumerator.
type EnumValue struct {
	NameOff uint32
	Value   *big.Int
}

// Member is a single member of a struct or union.
type Member struct {
	Index        int
	NameOff      uint32
	Type         TypeID
	BitOffset    uint32
	BitfieldSize uint8
}

// ByteOffset returns the offset of the member in bytes.
func (m Member) ByteOffset() uint64 {
	return uint64(m.BitOffset >> 3)
}

// BitPosition returns the offset of the first bit belonging to a bitfield
// member into the byte where it begins.
func (m Member) BitPosition() uint8 {
	return uint8(m.BitOffset & 0x07)
}

// IsBitfield reports whether the member is a bitfield.
func (m Member) IsBitfield() bool {
	return m.BitfieldSize != 0
}

// IsAnon reports whether the member is unnamed.
func (m Member) IsAnon() bool {
	return m.NameOff == 0
}

// VoidNode is the implicit type with ID 0.
type VoidNode struct{}

func (VoidNode) Kind() Kind      { return KindVoid }
func (VoidNode) NameOff() uint32 { return 0 }

// IntNode represents an integer base type.
type IntNode struct {
	nameOff uint32
	size    uint32
	signed  bool
	isChar  bool
	isBool  bool
}

func (n *IntNode) Kind() Kind       { return KindInt }
func (n *IntNode) NameOff() uint32  { return n.nameOff }
func (n *IntNode) ByteSize() uint32 { return n.size }
func (n *IntNode) Signed() bool     { return n.signed }
func (n *IntNode) IsChar() bool     { return n.isChar }
func (n *IntNode) IsBool() bool     { return n.isBool }

// FloatNode represents a floating-point base type.
type FloatNode struct {
	nameOff uint32
	size    uint32
}

func (n *FloatNode) Kind() Kind       { return KindFloat }
func (n *FloatNode) NameOff() uint32  { return n.nameOff }
func (n *FloatNode) ByteSize() uint32 { return n.size }

// PointerNode represents a pointer.
type PointerNode struct {
	target TypeID
}

func (n *PointerNode) Kind() Kind      { return KindPointer }
func (n *PointerNode) NameOff() uint32 { return 0 }
func (n *PointerNode) Target() TypeID  { return n.target }

// ArrayNode represents a fixed-length array. It chains to its element type.
type ArrayNode struct {
	elem   TypeID
	index  TypeID
	nelems uint32
}

func (n *ArrayNode) Kind() Kind      { return KindArray }
func (n *ArrayNode) NameOff() uint32 { return 0 }
func (n *ArrayNode) Target() TypeID  { return n.elem }
func (n *ArrayNode) Len() uint64     { return uint64(n.nelems) }

// StructNode represents a struct definition.
type StructNode struct {
	nameOff uint32
	size    uint32
	members []Member
}

func (n *StructNode) Kind() Kind        { return KindStruct }
func (n *StructNode) NameOff() uint32   { return n.nameOff }
func (n *StructNode) ByteSize() uint32  { return n.size }
func (n *StructNode) Members() []Member { return n.members }

// UnionNode represents a union definition.
type UnionNode struct {
	nameOff uint32
	size    uint32
	members []Member
}

func (n *UnionNode) Kind() Kind        { return KindUnion }
func (n *UnionNode) NameOff() uint32   { return n.nameOff }
func (n *UnionNode) ByteSize() uint32  { return n.size }
func (n *UnionNode) Members() []Member { return n.members }

// EnumNode represents a 32-bit enum.
type EnumNode struct {
	nameOff uint32
	size    uint32
	signed  bool
	values  []EnumValue
}

func (n *EnumNode) Kind() Kind          { return KindEnum }
func (n *EnumNode) NameOff() uint32     { return n.nameOff }
func (n *EnumNode) ByteSize() uint32    { return n.size }
func (n *EnumNode) Signed() bool        { return n.signed }
func (n *EnumNode) Values() []EnumValue { return n.values }

// Enum64Node represents a 64-bit enum.
type Enum64Node struct {
	nameOff uint32
	size    uint32
	signed  bool
	values  []EnumValue
}

func (n *Enum64Node) Kind() Kind          { return KindEnum64 }
func (n *Enum64Node) NameOff() uint32     { return n.nameOff }
func (n *Enum64Node) ByteSize() uint32    { return n.size }
func (n *Enum64Node) Signed() bool        { return n.signed }
func (n *Enum64Node) Values() []EnumValue { return n.values }

// FwdNode represents a forward declaration of a struct or union.
type FwdNode struct {
	nameOff uint32
	union   bool
}

func (n *FwdNode) Kind() Kind      { return KindFwd }
func (n *FwdNode) NameOff() uint32 { return n.nameOff }
func (n *FwdNode) IsUnion() bool   { return n.union }
func (n *FwdNode) IsStruct() bool  { return !n.union }

// TypedefNode represents a typedef.
type TypedefNode struct {
	nameOff uint32
	target  TypeID
}

func (n *TypedefNode) Kind() Kind      { return KindTypedef }
func (n *TypedefNode) NameOff() uint32 { return n.nameOff }
func (n *TypedefNode) Target() TypeID  { return n.target }

// QualifierNode represents const, volatile, restrict and type_tag records.
// Qualifiers are semantically transparent: they never contribute to a
// resolution path and never block traversal.
type QualifierNode struct {
	kind    Kind
	nameOff uint32
	target  TypeID
}

func (n *QualifierNode) Kind() Kind      { return n.kind }
func (n *QualifierNode) NameOff() uint32 { return n.nameOff }
func (n *QualifierNode) Target() TypeID  { return n.target }

// FuncNode represents a function declaration. It chains to its prototype.
type FuncNode struct {
	nameOff uint32
	target  TypeID
}

func (n *FuncNode) Kind() Kind      { return KindFunc }
func (n *FuncNode) NameOff() uint32 { return n.nameOff }
func (n *FuncNode) Target() TypeID  { return n.target }

// FuncProtoNode represents a function prototype. A terminal node.
type FuncProtoNode struct {
	ret    TypeID
	params []FuncParam
}

func (n *FuncProtoNode) Kind() Kind          { return KindFuncProto }
func (n *FuncProtoNode) NameOff() uint32     { return 0 }
func (n *FuncProtoNode) Return() TypeID      { return n.ret }
func (n *FuncProtoNode) Params() []FuncParam { return n.params }

// FuncParam is a single parameter of a function prototype.
type FuncParam struct {
	NameOff uint32
	Type    TypeID
}

// VarNode represents a variable declaration.
type VarNode struct {
	nameOff uint32
	target  TypeID
	linkage uint32
}

func (n *VarNode) Kind() Kind      { return KindVar }
func (n *VarNode) NameOff() uint32 { return n.nameOff }
func (n *VarNode) Target() TypeID  { return n.target }
func (n *VarNode) Linkage() uint32 { return n.linkage }

// DataSecNode represents an ELF data section descriptor. A terminal node.
type DataSecNode struct {
	nameOff uint32
	size    uint32
	vars    []DataSecVar
}

func (n *DataSecNode) Kind() Kind         { return KindDataSec }
func (n *DataSecNode) NameOff() uint32    { return n.nameOff }
func (n *DataSecNode) ByteSize() uint32   { return n.size }
func (n *DataSecNode) Vars() []DataSecVar { return n.vars }

// DataSecVar locates a variable within a data section.
type DataSecVar struct {
	Type   TypeID
	Offset uint32
	Size   uint32
}

// DeclTagNode represents a declaration tag annotation.
type DeclTagNode struct {
	nameOff      uint32
	target       TypeID
	componentIdx int32
}

func (n *DeclTagNode) Kind() Kind          { return KindDeclTag }
func (n *DeclTagNode) NameOff() uint32     { return n.nameOff }
func (n *DeclTagNode) Target() TypeID      { return n.target }
func (n *DeclTagNode) ComponentIdx() int32 { return n.componentIdx }

// IsBase reports whether the node is one of the base-type categories of the
// output profile (void, integer, float).
func IsBase(n Node) bool {
	switch n.Kind() {
	case KindVoid, KindInt, KindFloat:
		return true
	}
	return false
}

// IsEnum reports whether the node is an enum of either width.
func IsEnum(n Node) bool {
	return n.Kind() == KindEnum || n.Kind() == KindEnum64
}

// IsUser reports whether the node is a struct or union definition.
func IsUser(n Node) bool {
	return n.Kind() == KindStruct || n.Kind() == KindUnion
}

// IsTypedef reports whether the node is a typedef.
func IsTypedef(n Node) bool {
	return n.Kind() == KindTypedef
}

// NodeSize returns the byte size of the node, or 0 when it has none
// (void, pointers, prototypes).
func NodeSize(n Node) uint64 {
	if s, ok := n.(Sized); ok {
		return uint64(s.ByteSize())
	}
	return 0
}

// NodeSigned returns the signedness of the node for profile purposes.
// Void and pointers are unsigned, floats signed; the second return is
// false for nodes without a meaningful signedness.
func NodeSigned(n Node) (bool, bool) {
	switch t := n.(type) {
	case *IntNode:
		return t.Signed(), true
	case *EnumNode:
		return t.Signed(), true
	case *Enum64Node:
		return t.Signed(), true
	case VoidNode:
		return false, true
	case *PointerNode:
		return false, true
	case *FloatNode:
		return true, true
	}
	return false, false
}
