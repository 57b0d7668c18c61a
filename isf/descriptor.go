// Package isf assembles Volatility 3 intermediate symbol format (ISF)
// profiles from parsed BTF type information and kernel symbol tables.
package isf

import (
	"encoding/json"
	"fmt"
)

// DescriptorKind identifies a variant of the type-descriptor grammar.
type DescriptorKind string

const (
	DescrArray    DescriptorKind = "array"
	DescrBase     DescriptorKind = "base"
	DescrBitfield DescriptorKind = "bitfield"
	DescrEnum     DescriptorKind = "enum"
	DescrFunction DescriptorKind = "function"
	DescrPointer  DescriptorKind = "pointer"
	DescrStruct   DescriptorKind = "struct"
	DescrUnion    DescriptorKind = "union"
)

// TypeDescriptor is the recursive ISF `type_descriptor`.
//
// Which fields are meaningful depends on Kind: arrays carry Count and
// Subtype, pointers Subtype, bitfields the bit geometry and Subtype, the
// named terminals just Name, and function nothing.
type TypeDescriptor struct {
	Kind        DescriptorKind
	Name        string
	Count       uint64
	BitPosition uint8
	BitLength   uint8
	Subtype     *TypeDescriptor
}

// NewVoid returns the descriptor used for symbols without type
// information.
func NewVoid() *TypeDescriptor {
	return &TypeDescriptor{Kind: DescrBase, Name: "void"}
}

// Terminal resolves through array, pointer and bitfield wrappers to the
// innermost descriptor.
func (d *TypeDescriptor) Terminal() *TypeDescriptor {
	t := d
	for t.Subtype != nil {
		t = t.Subtype
	}
	return t
}

// KindLabel returns the C-style kind prefix for diagnostics; empty for
// base types.
func (d *TypeDescriptor) KindLabel() string {
	switch d.Kind {
	case DescrEnum, DescrStruct, DescrUnion:
		return string(d.Kind)
	}
	return ""
}

func (d *TypeDescriptor) String() string {
	t := d.Terminal()
	if label := t.KindLabel(); label != "" {
		return label + " " + t.Name
	}
	if t.Kind == DescrFunction {
		return "function"
	}
	return t.Name
}

// MarshalJSON emits the tagged representation of the grammar. The
// bitfield variant names its subtype "type"; array and pointer use
// "subtype".
func (d *TypeDescriptor) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DescrArray:
		return json.Marshal(struct {
			Kind    DescriptorKind  `json:"kind"`
			Count   uint64          `json:"count"`
			Subtype *TypeDescriptor `json:"subtype"`
		}{d.Kind, d.Count, d.Subtype})
	case DescrPointer:
		return json.Marshal(struct {
			Kind    DescriptorKind  `json:"kind"`
			Subtype *TypeDescriptor `json:"subtype"`
		}{d.Kind, d.Subtype})
	case DescrBitfield:
		return json.Marshal(struct {
			Kind        DescriptorKind  `json:"kind"`
			BitPosition uint8           `json:"bit_position"`
			BitLength   uint8           `json:"bit_length"`
			Subtype     *TypeDescriptor `json:"type"`
		}{d.Kind, d.BitPosition, d.BitLength, d.Subtype})
	case DescrBase, DescrEnum, DescrStruct, DescrUnion:
		return json.Marshal(struct {
			Kind DescriptorKind `json:"kind"`
			Name string         `json:"name"`
		}{d.Kind, d.Name})
	case DescrFunction:
		return json.Marshal(struct {
			Kind DescriptorKind `json:"kind"`
		}{d.Kind})
	default:
		return nil, fmt.Errorf("isf: cannot marshal descriptor kind %q", d.Kind)
	}
}

// UnmarshalJSON parses the tagged representation, validating that the
// fields required by the named variant are present.
func (d *TypeDescriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind        DescriptorKind  `json:"kind"`
		Name        *string         `json:"name"`
		Count       *uint64         `json:"count"`
		BitPosition *uint8          `json:"bit_position"`
		BitLength   *uint8          `json:"bit_length"`
		Subtype     *TypeDescriptor `json:"subtype"`
		Type        *TypeDescriptor `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Kind = raw.Kind
	switch raw.Kind {
	case DescrArray:
		if raw.Count == nil || raw.Subtype == nil {
			return fmt.Errorf("isf: array descriptor requires count and subtype")
		}
		d.Count = *raw.Count
		d.Subtype = raw.Subtype
	case DescrPointer:
		if raw.Subtype == nil {
			return fmt.Errorf("isf: pointer descriptor requires subtype")
		}
		d.Subtype = raw.Subtype
	case DescrBitfield:
		if raw.BitPosition == nil || raw.BitLength == nil || raw.Type == nil {
			return fmt.Errorf("isf: bitfield descriptor requires bit_position, bit_length and type")
		}
		d.BitPosition = *raw.BitPosition
		d.BitLength = *raw.BitLength
		d.Subtype = raw.Type
	case DescrBase, DescrEnum, DescrStruct, DescrUnion:
		if raw.Name == nil {
			return fmt.Errorf("isf: %s descriptor requires name", raw.Kind)
		}
		d.Name = *raw.Name
	case DescrFunction:
	default:
		return fmt.Errorf("isf: unknown descriptor kind %q", raw.Kind)
	}
	return nil
}

// ParseDescriptor decodes an independently-encoded descriptor, as found in
// the symbol type database.
func ParseDescriptor(s string) (*TypeDescriptor, error) {
	var d TypeDescriptor
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("isf: symbol type has invalid format: %w", err)
	}
	return &d, nil
}
