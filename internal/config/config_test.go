package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/btf2json/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	arch, err := cfg.ArchInfo("x86_64")
	require.NoError(t, err)
	assert.Equal(t, config.Address(0xffffffff81000000), arch.BaseOffset)
	assert.Equal(t, uint8(8), arch.PointerSize)

	arch, err = cfg.ArchInfo("arm64")
	require.NoError(t, err)
	assert.Equal(t, config.Address(0xffff800080010000), arch.BaseOffset)

	_, err = cfg.ArchInfo("riscv")
	assert.ErrorIs(t, err, config.ErrUnknownArch)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btf2json.toml")
	content := `
[producer]
name = "custom-tool"

[arch.x86_64]
base_offset = "0xffffffff82000000"

[arch.riscv]
base_offset = "0xff60000000000000"
pointer_size = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom-tool", cfg.Producer.Name)
	assert.Empty(t, cfg.Producer.Version)

	// overridden field changes, the rest keeps its default
	arch, err := cfg.ArchInfo("x86_64")
	require.NoError(t, err)
	assert.Equal(t, config.Address(0xffffffff82000000), arch.BaseOffset)
	assert.Equal(t, uint8(8), arch.PointerSize)

	// untouched arch keeps all defaults
	arch, err = cfg.ArchInfo("arm64")
	require.NoError(t, err)
	assert.Equal(t, config.Address(0xffff800080010000), arch.BaseOffset)

	// new arch is added
	arch, err = cfg.ArchInfo("riscv")
	require.NoError(t, err)
	assert.Equal(t, config.Address(0xff60000000000000), arch.BaseOffset)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("producer = ["), 0644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
