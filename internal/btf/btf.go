package btf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/skdltmxn/btf2json/internal/stream"
)

// BTF header magic. The byte order of the section is the one under which
// the first two bytes read back as this value.
const Magic uint16 = 0xeb9f

// BTF format version supported by this package.
const Version uint8 = 1

// btfHeaderSize is the minimal header size (btf_header).
const btfHeaderSize = 24

// nodeCacheSize bounds the number of parsed records kept in memory.
const nodeCacheSize = 1 << 16

// Errors
var (
	ErrInvalidHeader      = errors.New("btf: invalid BTF header")
	ErrUnsupportedVersion = errors.New("btf: unsupported BTF version")
	ErrTypeNotFound       = errors.New("btf: type not found")
	ErrInvalidTypeRecord  = errors.New("btf: invalid type record")
	ErrNoName             = errors.New("btf: type has no name")
)

// Header represents the BTF section header.
type Header struct {
	Magic   uint16
	Version uint8
	Flags   uint8

	// HdrLen is the size of this header; section offsets are relative to
	// its end.
	HdrLen uint32

	// TypeOff and TypeLen describe the type record area.
	TypeOff uint32
	TypeLen uint32

	// StrOff and StrLen describe the string table.
	StrOff uint32
	StrLen uint32
}

// Store is a read-only accessor over a BTF type section.
// It is built once from an immutable input buffer; all views handed out
// reference the same underlying memory.
type Store struct {
	Header Header

	order binary.ByteOrder
	types *stream.Reader
	strs  *stream.Reader

	// recordOffsets maps TypeID-1 to the byte offset of the record in the
	// type area. This enables O(1) random access by id.
	recordOffsets []int

	cache *lru.Cache[TypeID, Node]
}

// New parses a standalone BTF type section.
func New(data []byte, order binary.ByteOrder) (*Store, error) {
	if len(data) < btfHeaderSize {
		return nil, ErrInvalidHeader
	}

	r := stream.NewReader(data, order)
	s := &Store{order: order}
	if err := s.parseHeader(r); err != nil {
		return nil, err
	}

	typeStart := int(s.Header.HdrLen) + int(s.Header.TypeOff)
	types, err := r.Slice(typeStart, int(s.Header.TypeLen))
	if err != nil {
		return nil, fmt.Errorf("%w: truncated type area", ErrInvalidHeader)
	}
	strStart := int(s.Header.HdrLen) + int(s.Header.StrOff)
	strs, err := r.Slice(strStart, int(s.Header.StrLen))
	if err != nil {
		return nil, fmt.Errorf("%w: truncated string table", ErrInvalidHeader)
	}
	s.types = types
	s.strs = strs

	if err := s.buildOffsetIndex(); err != nil {
		return nil, err
	}

	cache, err := lru.New[TypeID, Node](nodeCacheSize)
	if err != nil {
		return nil, err
	}
	s.cache = cache

	slog.Debug("parsed BTF section", "types", len(s.recordOffsets), "strtab_bytes", s.Header.StrLen)
	return s, nil
}

// ByteOrder returns the byte order of the section.
func (s *Store) ByteOrder() binary.ByteOrder {
	return s.order
}

// NumTypes returns the number of type records in the section, not counting
// the implicit void type.
func (s *Store) NumTypes() int {
	return len(s.recordOffsets)
}

func (s *Store) parseHeader(r *stream.Reader) error {
	var err error

	s.Header.Magic, err = r.ReadU16()
	if err != nil {
		return err
	}
	if s.Header.Magic != Magic {
		return fmt.Errorf("%w: magic %#04x", ErrInvalidHeader, s.Header.Magic)
	}

	s.Header.Version, err = r.ReadU8()
	if err != nil {
		return err
	}
	if s.Header.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Header.Version)
	}

	s.Header.Flags, err = r.ReadU8()
	if err != nil {
		return err
	}

	s.Header.HdrLen, err = r.ReadU32()
	if err != nil {
		return err
	}
	if s.Header.HdrLen < btfHeaderSize {
		return fmt.Errorf("%w: header length %d", ErrInvalidHeader, s.Header.HdrLen)
	}

	s.Header.TypeOff, err = r.ReadU32()
	if err != nil {
		return err
	}
	s.Header.TypeLen, err = r.ReadU32()
	if err != nil {
		return err
	}
	s.Header.StrOff, err = r.ReadU32()
	if err != nil {
		return err
	}
	s.Header.StrLen, err = r.ReadU32()
	if err != nil {
		return err
	}

	return nil
}

// buildOffsetIndex scans the type area once to record the offset of every
// record. Record ids are dense and assigned in order of appearance.
func (s *Store) buildOffsetIndex() error {
	r := stream.NewReader(s.types.Data(), s.order)

	for r.Remaining() > 0 {
		offset := r.Offset()

		if err := r.Skip(4); err != nil { // name_off
			return fmt.Errorf("%w: at offset %d", ErrInvalidTypeRecord, offset)
		}
		info, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("%w: at offset %d", ErrInvalidTypeRecord, offset)
		}
		if err := r.Skip(4); err != nil { // size or type
			return fmt.Errorf("%w: at offset %d", ErrInvalidTypeRecord, offset)
		}

		extra, err := recordExtraSize(Kind(info>>24&0x1f), int(info&0xffff))
		if err != nil {
			return fmt.Errorf("%w: at offset %d: %v", ErrInvalidTypeRecord, offset, err)
		}
		if err := r.Skip(extra); err != nil {
			return fmt.Errorf("%w: truncated record at offset %d", ErrInvalidTypeRecord, offset)
		}

		s.recordOffsets = append(s.recordOffsets, offset)
	}

	return nil
}

// recordExtraSize returns the number of bytes following the common record
// header for the given kind.
func recordExtraSize(kind Kind, vlen int) (int, error) {
	switch kind {
	case KindInt, KindVar, KindDeclTag:
		return 4, nil
	case KindArray:
		return 12, nil
	case KindStruct, KindUnion, KindDataSec, KindEnum64:
		return 12 * vlen, nil
	case KindEnum, KindFuncProto:
		return 8 * vlen, nil
	case KindPointer, KindFwd, KindTypedef, KindVolatile, KindConst,
		KindRestrict, KindFunc, KindFloat, KindTypeTag:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown kind %d", kind)
	}
}

// NodeByID resolves a type id to its parsed representation.
// Returns ErrTypeNotFound for ids beyond the section; during a full-graph
// scan that is the expected terminator, not a fault.
func (s *Store) NodeByID(id TypeID) (Node, error) {
	if id == 0 {
		return VoidNode{}, nil
	}
	idx := int(id) - 1
	if idx >= len(s.recordOffsets) {
		return nil, fmt.Errorf("%w: id %d", ErrTypeNotFound, id)
	}

	if n, ok := s.cache.Get(id); ok {
		return n, nil
	}

	n, err := s.parseRecord(s.recordOffsets[idx])
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, n)
	return n, nil
}

func (s *Store) parseRecord(offset int) (Node, error) {
	r := stream.NewReader(s.types.Data(), s.order)
	if err := r.SetOffset(offset); err != nil {
		return nil, err
	}

	nameOff, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	info, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	sizeOrType, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	kind := Kind(info >> 24 & 0x1f)
	vlen := int(info & 0xffff)
	kindFlag := info>>31 != 0

	switch kind {
	case KindInt:
		enc, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		encoding := enc >> 24 & 0x0f
		return &IntNode{
			nameOff: nameOff,
			size:    sizeOrType,
			signed:  encoding&0x1 != 0,
			isChar:  encoding&0x2 != 0,
			isBool:  encoding&0x4 != 0,
		}, nil

	case KindFloat:
		return &FloatNode{nameOff: nameOff, size: sizeOrType}, nil

	case KindPointer:
		return &PointerNode{target: TypeID(sizeOrType)}, nil

	case KindArray:
		elem, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		index, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		nelems, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return &ArrayNode{elem: TypeID(elem), index: TypeID(index), nelems: nelems}, nil

	case KindStruct, KindUnion:
		members, err := s.parseMembers(r, vlen, kindFlag)
		if err != nil {
			return nil, err
		}
		if kind == KindStruct {
			return &StructNode{nameOff: nameOff, size: sizeOrType, members: members}, nil
		}
		return &UnionNode{nameOff: nameOff, size: sizeOrType, members: members}, nil

	case KindEnum:
		values := make([]EnumValue, 0, vlen)
		for i := 0; i < vlen; i++ {
			vNameOff, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			val, err := r.ReadI32()
			if err != nil {
				return nil, err
			}
			values = append(values, EnumValue{NameOff: vNameOff, Value: big.NewInt(int64(val))})
		}
		return &EnumNode{nameOff: nameOff, size: sizeOrType, signed: kindFlag, values: values}, nil

	case KindEnum64:
		values := make([]EnumValue, 0, vlen)
		for i := 0; i < vlen; i++ {
			vNameOff, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			lo, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			hi, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			raw := uint64(hi)<<32 | uint64(lo)
			v := new(big.Int)
			if kindFlag {
				v.SetInt64(int64(raw))
			} else {
				v.SetUint64(raw)
			}
			values = append(values, EnumValue{NameOff: vNameOff, Value: v})
		}
		return &Enum64Node{nameOff: nameOff, size: sizeOrType, signed: kindFlag, values: values}, nil

	case KindFwd:
		return &FwdNode{nameOff: nameOff, union: kindFlag}, nil

	case KindTypedef:
		return &TypedefNode{nameOff: nameOff, target: TypeID(sizeOrType)}, nil

	case KindVolatile, KindConst, KindRestrict, KindTypeTag:
		return &QualifierNode{kind: kind, nameOff: nameOff, target: TypeID(sizeOrType)}, nil

	case KindFunc:
		return &FuncNode{nameOff: nameOff, target: TypeID(sizeOrType)}, nil

	case KindFuncProto:
		params := make([]FuncParam, 0, vlen)
		for i := 0; i < vlen; i++ {
			pNameOff, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			pType, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			params = append(params, FuncParam{NameOff: pNameOff, Type: TypeID(pType)})
		}
		return &FuncProtoNode{ret: TypeID(sizeOrType), params: params}, nil

	case KindVar:
		linkage, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return &VarNode{nameOff: nameOff, target: TypeID(sizeOrType), linkage: linkage}, nil

	case KindDataSec:
		vars := make([]DataSecVar, 0, vlen)
		for i := 0; i < vlen; i++ {
			vType, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			vOffset, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			vSize, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			vars = append(vars, DataSecVar{Type: TypeID(vType), Offset: vOffset, Size: vSize})
		}
		return &DataSecNode{nameOff: nameOff, size: sizeOrType, vars: vars}, nil

	case KindDeclTag:
		idx, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		return &DeclTagNode{nameOff: nameOff, target: TypeID(sizeOrType), componentIdx: idx}, nil

	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidTypeRecord, kind)
	}
}

func (s *Store) parseMembers(r *stream.Reader, vlen int, kindFlag bool) ([]Member, error) {
	members := make([]Member, 0, vlen)
	for i := 0; i < vlen; i++ {
		nameOff, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		typ, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		offset, err := r.ReadU32()
		if err != nil {
			return nil, err
		}

		m := Member{Index: i, NameOff: nameOff, Type: TypeID(typ)}
		if kindFlag {
			// Offset encodes bitfield size in the top byte.
			m.BitOffset = offset & 0x00ffffff
			m.BitfieldSize = uint8(offset >> 24)
		} else {
			m.BitOffset = offset
		}
		members = append(members, m)
	}
	return members, nil
}

// Name returns the string table entry at the given offset. Offset 0 and
// empty entries are reported as ErrNoName.
func (s *Store) Name(off uint32) (string, error) {
	if off == 0 {
		return "", ErrNoName
	}
	name, err := s.strs.CStringAt(int(off))
	if err != nil {
		return "", fmt.Errorf("btf: bad string offset %d: %w", off, err)
	}
	if name == "" {
		return "", ErrNoName
	}
	return name, nil
}
