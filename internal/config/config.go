// Package config loads optional TOML configuration for profile
// generation. Every setting has a built-in default; a config file only
// overrides what it names.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrUnknownArch indicates an architecture without a configured base
// offset.
var ErrUnknownArch = errors.New("config: unknown architecture")

// Address is a kernel virtual address. Kernel addresses exceed the TOML
// integer range, so config files write them as strings, with or without a
// 0x prefix.
type Address uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return fmt.Errorf("config: invalid address %q: %w", text, err)
	}
	*a = Address(v)
	return nil
}

// Arch holds per-architecture constants.
type Arch struct {
	// BaseOffset is the default virtual address of _stext, used to remove
	// the KASLR shift from System.map addresses.
	BaseOffset Address `toml:"base_offset"`

	// PointerSize is the width of a pointer in bytes.
	PointerSize uint8 `toml:"pointer_size"`
}

// Producer optionally overrides the producer recorded in the profile
// metadata.
type Producer struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Config is the full configuration.
type Config struct {
	Producer Producer        `toml:"producer"`
	Arch     map[string]Arch `toml:"arch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Arch: map[string]Arch{
			"x86_64": {BaseOffset: 0xffffffff81000000, PointerSize: 8},
			"arm64":  {BaseOffset: 0xffff800080010000, PointerSize: 8},
		},
	}
}

// Load reads a TOML config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var file Config
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if file.Producer.Name != "" {
		cfg.Producer.Name = file.Producer.Name
	}
	if file.Producer.Version != "" {
		cfg.Producer.Version = file.Producer.Version
	}
	for name, arch := range file.Arch {
		merged := cfg.Arch[name]
		if arch.BaseOffset != 0 {
			merged.BaseOffset = arch.BaseOffset
		}
		if arch.PointerSize != 0 {
			merged.PointerSize = arch.PointerSize
		}
		cfg.Arch[name] = merged
	}

	slog.Debug("loaded config", "path", path)
	return cfg, nil
}

// ArchInfo returns the constants for the named architecture.
func (c *Config) ArchInfo(name string) (Arch, error) {
	arch, ok := c.Arch[name]
	if !ok {
		return Arch{}, fmt.Errorf("%w: %s", ErrUnknownArch, name)
	}
	return arch, nil
}
