package isf

import (
	"crypto/sha256"
	"encoding/hex"
)

// FormatVersion is the ISF schema version the emitted profile conforms
// to.
const FormatVersion = "6.2.0"

// Default producer identity, overridable through configuration.
const (
	ProducerName    = "btf2json"
	ProducerVersion = "1.0.0"
)

// SourceKind names the provenance class of a profile input.
type SourceKind string

const (
	SourceBTF   SourceKind = "btf"
	SourceMap   SourceKind = "system-map"
	SourceSymdb SourceKind = "symdb"
)

// Source records one input the profile was generated from.
type Source struct {
	Kind      SourceKind `json:"kind"`
	Name      string     `json:"name"`
	HashType  string     `json:"hash_type"`
	HashValue string     `json:"hash_value"`
}

// NewSource hashes the raw input bytes into a provenance record.
func NewSource(kind SourceKind, name string, raw []byte) *Source {
	sum := sha256.Sum256(raw)
	return &Source{
		Kind:      kind,
		Name:      name,
		HashType:  "sha256",
		HashValue: hex.EncodeToString(sum[:]),
	}
}

// Producer identifies the tool that generated the profile.
type Producer struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// LinuxMetadata lists the type and symbol sources of a Linux profile.
type LinuxMetadata struct {
	Types   []*Source `json:"types"`
	Symbols []*Source `json:"symbols"`
}

// Metadata is the ISF `metadata` element.
type Metadata struct {
	Producer *Producer      `json:"producer"`
	Format   string         `json:"format"`
	Linux    *LinuxMetadata `json:"linux"`
}
