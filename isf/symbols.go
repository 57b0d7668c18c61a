package isf

import (
	"fmt"

	"github.com/skdltmxn/btf2json/internal/sysmap"
)

// Symbol is an ISF `element_symbol`.
type Symbol struct {
	Address      uint64          `json:"address"`
	Type         *TypeDescriptor `json:"type"`
	Linkage      string          `json:"linkage,omitempty"`
	ConstantData string          `json:"constant_data,omitempty"`
}

// newSymbol converts a gathered kernel symbol into its profile entry.
// Symbols without type information are published as void.
func newSymbol(name string, s *sysmap.Symbol) (*Symbol, error) {
	typ := NewVoid()
	if s.Type != "" {
		var err error
		typ, err = ParseDescriptor(s.Type)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", name, err)
		}
	}
	return &Symbol{
		Address:      s.Addr,
		Type:         typ,
		ConstantData: s.ConstantData,
	}, nil
}
