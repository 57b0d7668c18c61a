// Package image recognizes kernel type-information buffers and extracts
// the raw BTF section and banner from ELF images.
package image

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Section name carrying BTF type information in kernel images.
const btfSectionName = ".BTF"

// Symbol holding the kernel banner string.
const bannerSymbol = "linux_banner"

// Errors
var (
	ErrUnknownFormat = errors.New("image: buffer is neither a BTF section nor an ELF file")
	ErrNotELF        = errors.New("image: not an ELF file")
	ErrNoBTFSection  = errors.New("image: no .BTF section in ELF file")
	ErrNoBanner      = errors.New("image: unable to find Linux banner")
)

// Endian is the byte order of a type-information source.
type Endian int

const (
	Little Endian = iota
	Big
)

func (e Endian) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

// Order returns the matching binary.ByteOrder.
func (e Endian) Order() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

var (
	btfMagicLE = []byte{0x9f, 0xeb}
	btfMagicBE = []byte{0xeb, 0x9f}

	elfMagicLE = []byte{0x7f, 0x45, 0x4c, 0x46}
	elfMagicBE = []byte{0x46, 0x4c, 0x45, 0x7f}
)

// Source is a recognized type-information buffer.
type Source struct {
	// Endian is the byte order of the type section.
	Endian Endian
	// Section is the raw BTF type section. It references the input buffer.
	Section []byte
}

// Detect recognizes the format of a type-information buffer: either a
// standalone BTF section, identified by its magic, or an ELF image
// containing a .BTF section. Anything else is a format error.
func Detect(buf []byte) (*Source, error) {
	if len(buf) >= 2 {
		if bytes.Equal(buf[:2], btfMagicLE) {
			slog.Debug("got standalone BTF section", "endian", Little)
			return &Source{Endian: Little, Section: buf}, nil
		}
		if bytes.Equal(buf[:2], btfMagicBE) {
			slog.Debug("got standalone BTF section", "endian", Big)
			return &Source{Endian: Big, Section: buf}, nil
		}
	}

	endian, err := elfEndian(buf)
	if err != nil {
		return nil, ErrUnknownFormat
	}
	sec, err := extractBTFSection(buf)
	if err != nil {
		return nil, err
	}
	return &Source{Endian: endian, Section: sec}, nil
}

// elfEndian determines whether the buffer is an ELF file, and, if yes, its
// endianness.
func elfEndian(buf []byte) (Endian, error) {
	if len(buf) < 4 {
		return Little, ErrNotELF
	}
	if bytes.Equal(buf[:4], elfMagicLE) {
		return Little, nil
	}
	if bytes.Equal(buf[:4], elfMagicBE) {
		return Big, nil
	}
	return Little, ErrNotELF
}

// extractBTFSection returns the raw bytes of the .BTF section.
func extractBTFSection(buf []byte) ([]byte, error) {
	f, err := elf.NewFile(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("image: parsing ELF: %w", err)
	}
	defer f.Close()

	for _, sec := range f.Sections {
		if sec.Name != btfSectionName {
			continue
		}
		slog.Debug("found BTF section", "offset", sec.Offset, "size", sec.FileSize)
		if sec.Offset+sec.FileSize > uint64(len(buf)) {
			return nil, fmt.Errorf("image: %s section exceeds file size", btfSectionName)
		}
		return buf[sec.Offset : sec.Offset+sec.FileSize], nil
	}

	return nil, ErrNoBTFSection
}

// Banner returns the Linux banner of the ELF image.
//
// The banner is read from the file region backing the linux_banner symbol:
// its containing section's file offset plus the symbol's offset into the
// section.
func Banner(buf []byte) (string, error) {
	if _, err := elfEndian(buf); err != nil {
		return "", err
	}

	f, err := elf.NewFile(bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("image: parsing ELF: %w", err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return "", fmt.Errorf("image: reading symbol table: %w", err)
	}

	for _, sym := range syms {
		if sym.Name != bannerSymbol {
			continue
		}
		if int(sym.Section) < 0 || int(sym.Section) >= len(f.Sections) {
			return "", fmt.Errorf("image: banner is in non-existent section %d", sym.Section)
		}
		sec := f.Sections[sym.Section]

		start := sec.Offset + (sym.Value - sec.Addr)
		end := start + sym.Size
		if end > uint64(len(buf)) || end < start {
			return "", fmt.Errorf("image: banner extends past end of file")
		}

		slog.Debug("found Linux banner", "section", sym.Section, "offset", start, "size", sym.Size)

		banner := buf[start:end]
		if !utf8.Valid(banner) {
			return "", fmt.Errorf("image: banner is not valid UTF-8")
		}
		return string(banner), nil
	}

	return "", ErrNoBanner
}
