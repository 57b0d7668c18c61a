package sysmap_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/btf2json/internal/sysmap"
)

const x86BaseOffset = 0xffffffff81000000

func writeMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "System.map")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestKASLRShiftRemoval(t *testing.T) {
	path := writeMap(t, "ffffffff8a000000 T _stext\n"+
		"ffffffff8a001000 T foo\n"+
		"ffffffff8a002000 d bar\n")

	b := sysmap.NewBuilder(x86BaseOffset)
	require.NoError(t, b.AddSystemMap(path))
	table := b.Build()

	addr, ok := table.AddrOf("_stext")
	require.True(t, ok)
	assert.Equal(t, uint64(x86BaseOffset), addr)

	addr, ok = table.AddrOf("foo")
	require.True(t, ok)
	assert.Equal(t, uint64(0xffffffff81001000), addr)

	bar := table.Symbols()["bar"]
	require.NotNil(t, bar)
	assert.Equal(t, sysmap.Data, bar.Kind)
	assert.Equal(t, sysmap.Local, bar.Scope)
	assert.Equal(t, sysmap.Global, table.Symbols()["foo"].Scope)
}

func TestAmbiguousNamesDropped(t *testing.T) {
	path := writeMap(t, "ffffffff81000000 T _stext\n"+
		"ffffffff81001000 t dup\n"+
		"ffffffff81002000 t dup\n"+
		"ffffffff81003000 t dup\n"+
		"ffffffff81004000 T keep\n")

	b := sysmap.NewBuilder(x86BaseOffset)
	require.NoError(t, b.AddSystemMap(path))
	table := b.Build()

	_, ok := table.AddrOf("dup")
	assert.False(t, ok)
	_, ok = table.AddrOf("keep")
	assert.True(t, ok)
	assert.Equal(t, 2, table.Len())
}

func TestMalformedLines(t *testing.T) {
	b := sysmap.NewBuilder(x86BaseOffset)
	err := b.AddSystemMap(writeMap(t, "not a valid line at all\n"))
	assert.ErrorIs(t, err, sysmap.ErrInvalidLine)

	b = sysmap.NewBuilder(x86BaseOffset)
	err = b.AddSystemMap(writeMap(t, "zzzz T foo\n"))
	assert.ErrorIs(t, err, sysmap.ErrInvalidAddr)

	b = sysmap.NewBuilder(x86BaseOffset)
	err = b.AddSystemMap(writeMap(t, "ffffffff81000000 X foo\n"))
	assert.ErrorIs(t, err, sysmap.ErrInvalidKind)
}

func TestMissingAnchor(t *testing.T) {
	b := sysmap.NewBuilder(x86BaseOffset)
	err := b.AddSystemMap(writeMap(t, "ffffffff81001000 T foo\n"))
	assert.ErrorIs(t, err, sysmap.ErrNoAnchor)
}

func TestSymdbTypes(t *testing.T) {
	path := writeMap(t, "ffffffff81000000 T _stext\n"+
		"ffffffff81001000 D init_task\n"+
		"ffffffff81002000 R linux_banner\n"+
		"ffffffff81003000 T untyped\n")

	b := sysmap.NewBuilder(x86BaseOffset)
	require.NoError(t, b.AddSystemMap(path))
	require.NoError(t, b.AddSymdbTypes())
	table := b.Build()

	assert.NotEmpty(t, table.Symbols()["init_task"].Type)
	assert.Empty(t, table.Symbols()["untyped"].Type)
	assert.Equal(t, 2, table.WithTypes())
	assert.Equal(t, "kernel.symdb", table.SymdbName())
	assert.NotEmpty(t, table.RawSymdb())
}

func TestAddBanner(t *testing.T) {
	path := writeMap(t, "ffffffff81000000 T _stext\n"+
		"ffffffff81001000 R linux_banner\n")

	b := sysmap.NewBuilder(x86BaseOffset)
	require.NoError(t, b.AddSystemMap(path))

	banner := "Linux version 6.6.0 (gcc 13.2.0) #1 SMP"
	require.NoError(t, b.AddBanner(banner))

	sym := b.Build().Symbols()["linux_banner"]
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(banner)), sym.ConstantData)
}

func TestAddBannerWithoutSymbol(t *testing.T) {
	path := writeMap(t, "ffffffff81000000 T _stext\n")

	b := sysmap.NewBuilder(x86BaseOffset)
	require.NoError(t, b.AddSystemMap(path))
	assert.ErrorIs(t, b.AddBanner("Linux version 6.6.0"), sysmap.ErrNoBannerSym)
}

func TestMapProvenance(t *testing.T) {
	content := "ffffffff81000000 T _stext\n"
	path := writeMap(t, content)

	b := sysmap.NewBuilder(x86BaseOffset)
	require.NoError(t, b.AddSystemMap(path))
	table := b.Build()

	assert.Equal(t, "System.map", table.MapName())
	assert.Equal(t, []byte(content), table.RawMap())
}
