// Package sysmap builds kernel symbol information from a System.map file,
// the embedded symbol type database, and the kernel banner.
package sysmap

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Anchor symbol used to remove the KASLR shift from published addresses.
const anchorSymbol = "_stext"

// Symbol holding the kernel banner payload.
const bannerSymbol = "linux_banner"

// Errors
var (
	ErrInvalidLine = errors.New("sysmap: invalid System.map line")
	ErrInvalidAddr = errors.New("sysmap: invalid address in System.map")
	ErrInvalidKind = errors.New("sysmap: invalid symbol kind in System.map")
	ErrNoAnchor    = errors.New("sysmap: no _stext symbol found in System.map")
	ErrNoBannerSym = errors.New("sysmap: no symbol entry for Linux banner")
)

// SymbolKind is the nm-style section letter of a symbol.
type SymbolKind string

const (
	Text     SymbolKind = "T" // text (code) segment symbol
	ReadOnly SymbolKind = "R" // read-only data segment symbol
	Weak     SymbolKind = "W" // weak symbol
	WeakObj  SymbolKind = "V" // weak object
	Absolute SymbolKind = "A" // absolute value
	Data     SymbolKind = "D" // data segment symbol
	BSS      SymbolKind = "B" // bss segment symbol
)

// symbolKinds has all recognized symbol kind letters, upper or lower case.
var symbolKinds = map[string]SymbolKind{
	"T": Text, "t": Text,
	"R": ReadOnly, "r": ReadOnly,
	"W": Weak, "w": Weak,
	"V": WeakObj, "v": WeakObj,
	"A": Absolute, "a": Absolute,
	"D": Data, "d": Data,
	"B": BSS, "b": BSS,
}

// Scope distinguishes global from local (static) symbols. Lowercase kind
// letters denote local symbols.
type Scope int

const (
	Global Scope = iota
	Local
)

// Symbol is the information gathered about a single kernel symbol.
type Symbol struct {
	// Addr is the published address, after KASLR-shift removal.
	Addr uint64

	// Type is the symbol's type as an ISF type-descriptor JSON string,
	// empty when unknown. Types come from the embedded database, not from
	// the type graph.
	Type string

	// ConstantData is an optional base64 payload (the banner).
	ConstantData string

	Kind  SymbolKind
	Scope Scope
}

// Table is the full set of symbols together with provenance for the
// sources it was built from.
type Table struct {
	symbols map[string]*Symbol

	rawMap  []byte
	nameMap string

	rawSymdb  []byte
	nameSymdb string

	// baseOffset is the architecture's default _stext address.
	baseOffset uint64
}

// Symbols returns the symbol map, keyed by name.
func (t *Table) Symbols() map[string]*Symbol {
	return t.symbols
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.symbols)
}

// WithTypes returns the number of symbols that have associated type
// information.
func (t *Table) WithTypes() int {
	n := 0
	for _, s := range t.symbols {
		if s.Type != "" {
			n++
		}
	}
	return n
}

// AddrOf returns the published address of the named symbol.
func (t *Table) AddrOf(name string) (uint64, bool) {
	s, ok := t.symbols[name]
	if !ok {
		return 0, false
	}
	return s.Addr, true
}

// RawMap returns the raw bytes of the System.map used to build the table.
func (t *Table) RawMap() []byte { return t.rawMap }

// MapName returns the file name of the System.map used to build the table.
func (t *Table) MapName() string { return t.nameMap }

// RawSymdb returns the raw bytes of the embedded symbol type database.
func (t *Table) RawSymdb() []byte { return t.rawSymdb }

// SymdbName returns the name of the embedded symbol type database.
func (t *Table) SymdbName() string { return t.nameSymdb }

// Builder combines the different symbol information sources into a Table.
type Builder struct {
	t *Table
}

// NewBuilder returns a Builder using the given architecture base offset
// for KASLR-shift removal.
func NewBuilder(baseOffset uint64) *Builder {
	slog.Debug("base offset", "value", fmt.Sprintf("%#x", baseOffset))
	return &Builder{t: &Table{
		symbols:    make(map[string]*Symbol),
		baseOffset: baseOffset,
	}}
}

// Build returns the assembled table.
func (b *Builder) Build() *Table {
	return b.t
}

// AddSystemMap parses a System.map file and publishes its symbols with the
// KASLR shift removed.
//
// Symbol names are not suitable to disambiguate symbols, but the output
// format nevertheless keys on them. A name that appears more than once is
// dropped entirely rather than de-duplicated.
func (b *Builder) AddSystemMap(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sysmap: reading %s: %w", path, err)
	}

	parsed := make(map[string]*Symbol)
	ambiguous := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Split(line, " ")
		if len(parts) != 3 {
			return fmt.Errorf("%w: %q", ErrInvalidLine, line)
		}
		addrStr, kindStr, name := parts[0], parts[1], parts[2]

		if ambiguous[name] {
			continue
		}
		if _, ok := parsed[name]; ok {
			delete(parsed, name)
			ambiguous[name] = true
			slog.Debug("symbol name is ambiguous, dropping", "name", name)
			continue
		}

		addr, err := strconv.ParseUint(addrStr, 16, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAddr, addrStr)
		}
		kind, ok := symbolKinds[kindStr]
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidKind, kindStr)
		}
		scope := Global
		if kindStr == strings.ToLower(kindStr) {
			scope = Local
		}

		parsed[name] = &Symbol{Addr: addr, Kind: kind, Scope: scope}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sysmap: reading %s: %w", path, err)
	}

	anchor, ok := parsed[anchorSymbol]
	if !ok {
		return ErrNoAnchor
	}
	shift := anchor.Addr - b.t.baseOffset
	for name, sym := range parsed {
		sym.Addr -= shift
		b.t.symbols[name] = sym
	}

	b.t.rawMap = raw
	b.t.nameMap = baseName(path)
	return nil
}

// AddSymdbTypes merges type information from the embedded database onto
// matching symbols.
func (b *Builder) AddSymdbTypes() error {
	db, err := openSymdb()
	if err != nil {
		return err
	}
	for name, typ := range db.entries {
		if sym, ok := b.t.symbols[name]; ok {
			sym.Type = typ
		}
	}

	b.t.rawSymdb = db.raw
	b.t.nameSymdb = symdbName
	return nil
}

// AddBanner attaches the base64 encoded banner as payload to the banner
// symbol. This is how the consumer expects it.
func (b *Builder) AddBanner(banner string) error {
	slog.Info("found banner", "banner", banner)

	sym, ok := b.t.symbols[bannerSymbol]
	if !ok {
		return ErrNoBannerSym
	}
	sym.ConstantData = base64.StdEncoding.EncodeToString([]byte(banner))
	return nil
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
