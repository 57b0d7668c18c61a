package isf

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/skdltmxn/btf2json/internal/btf"
	"github.com/skdltmxn/btf2json/internal/sysmap"
)

// Options configures profile generation.
type Options struct {
	// ProducerName and ProducerVersion identify the generating tool in the
	// profile metadata. Empty values fall back to the built-in identity.
	ProducerName    string
	ProducerVersion string

	// Endian is the byte order of the analyzed kernel.
	Endian Endian

	// PointerSize is the pointer width in bytes of the analyzed kernel.
	PointerSize uint8

	// BTFName and BTFRaw describe the type source for provenance.
	BTFName string
	BTFRaw  []byte
}

// Document is a complete ISF profile.
//
// Maps serialize with sorted keys, which both makes the output
// deterministic and fixes the iteration order the enum base-type search
// depends on.
type Document struct {
	Metadata  *Metadata          `json:"metadata"`
	BaseTypes map[string]*Base   `json:"base_types"`
	Enums     map[string]*Enum   `json:"enums"`
	UserTypes map[string]*User   `json:"user_types"`
	Symbols   map[string]*Symbol `json:"symbols"`
}

// Generate assembles a profile from a partitioned type graph and a symbol
// table.
//
// Ids are processed in ascending order, so when several ids share a name
// the entry of the highest id wins.
func Generate(store *btf.Store, part *btf.Partition, table *sysmap.Table, opts *Options) (*Document, error) {
	doc := &Document{
		BaseTypes: make(map[string]*Base),
		Enums:     make(map[string]*Enum),
		UserTypes: make(map[string]*User),
		Symbols:   make(map[string]*Symbol),
	}

	for _, id := range part.BaseIDs {
		n, err := store.NodeByID(id)
		if err != nil {
			return nil, err
		}
		b, err := newBase(n, opts.Endian)
		if err != nil {
			return nil, fmt.Errorf("base type %d: %w", id, err)
		}
		names, err := store.NamesForID(id, nil)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			doc.BaseTypes[name] = b
		}
	}

	// Volatility expects a base type named "pointer" even though BTF has no
	// such type. Synthesize one unless the section already provides it.
	if _, ok := doc.BaseTypes["pointer"]; !ok {
		doc.BaseTypes["pointer"] = newPointerBase(opts.Endian, opts.PointerSize)
	}

	for _, id := range part.EnumIDs {
		n, err := store.NodeByID(id)
		if err != nil {
			return nil, err
		}
		e, err := newEnum(store, n, doc.BaseTypes)
		if err != nil {
			return nil, fmt.Errorf("enum %d: %w", id, err)
		}
		names, err := store.NamesForID(id, part.Typedefs)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			doc.Enums[name] = e
		}
	}

	for _, id := range part.UserIDs {
		n, err := store.NodeByID(id)
		if err != nil {
			return nil, err
		}
		u, err := newUser(store, id, n)
		if err != nil {
			return nil, fmt.Errorf("user type %d: %w", id, err)
		}
		names, err := store.NamesForID(id, part.Typedefs)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			doc.UserTypes[name] = u
		}
	}

	for name, sym := range table.Symbols() {
		s, err := newSymbol(name, sym)
		if err != nil {
			return nil, err
		}
		doc.Symbols[name] = s
	}

	doc.Metadata = newMetadata(table, opts)
	return doc, nil
}

func newMetadata(table *sysmap.Table, opts *Options) *Metadata {
	producer := &Producer{Name: ProducerName, Version: ProducerVersion}
	if opts.ProducerName != "" {
		producer.Name = opts.ProducerName
	}
	if opts.ProducerVersion != "" {
		producer.Version = opts.ProducerVersion
	}

	linux := &LinuxMetadata{
		Types: []*Source{NewSource(SourceBTF, opts.BTFName, opts.BTFRaw)},
	}
	if table.RawMap() != nil {
		linux.Symbols = append(linux.Symbols,
			NewSource(SourceMap, table.MapName(), table.RawMap()))
	}
	if table.RawSymdb() != nil {
		linux.Symbols = append(linux.Symbols,
			NewSource(SourceSymdb, table.SymdbName(), table.RawSymdb()))
	}

	return &Metadata{
		Producer: producer,
		Format:   FormatVersion,
		Linux:    linux,
	}
}

// Dump writes the profile as a single line of JSON.
func (d *Document) Dump(w io.Writer) error {
	slog.Debug("profile elements",
		"base", len(d.BaseTypes),
		"enum", len(d.Enums),
		"user", len(d.UserTypes),
		"symbol", len(d.Symbols))
	return json.NewEncoder(w).Encode(d)
}
