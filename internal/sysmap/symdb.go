package sysmap

import (
	_ "embed"
	"fmt"
	"strings"
)

// symdbName is the name of the embedded symbol type database, recorded in
// the profile metadata.
const symdbName = "kernel.symdb"

// The database maps symbol names to independently-encoded ISF type
// descriptors. One line per symbol: `<name> <type descriptor JSON>`.
//
//go:embed kernel.symdb
var symdbRaw []byte

type symdb struct {
	raw     []byte
	entries map[string]string
}

// openSymdb parses the embedded database. The database ships with the
// binary, so a malformed entry is a build defect, not an input error.
func openSymdb() (*symdb, error) {
	db := &symdb{
		raw:     symdbRaw,
		entries: make(map[string]string),
	}
	for i, line := range strings.Split(string(symdbRaw), "\n") {
		if line == "" {
			continue
		}
		name, typ, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("sysmap: invalid symdb entry on line %d: %q", i+1, line)
		}
		db.entries[name] = typ
	}
	return db, nil
}
