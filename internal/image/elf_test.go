package image_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/btf2json/internal/image"
)

func TestDetectStandaloneBTF(t *testing.T) {
	le := []byte{0x9f, 0xeb, 0x01, 0x00}
	src, err := image.Detect(le)
	require.NoError(t, err)
	assert.Equal(t, image.Little, src.Endian)
	assert.Equal(t, le, src.Section)

	be := []byte{0xeb, 0x9f, 0x01, 0x00}
	src, err = image.Detect(be)
	require.NoError(t, err)
	assert.Equal(t, image.Big, src.Endian)
}

func TestDetectUnknownFormat(t *testing.T) {
	_, err := image.Detect([]byte("plain text, definitely not a kernel"))
	assert.ErrorIs(t, err, image.ErrUnknownFormat)

	_, err = image.Detect([]byte{0x9f})
	assert.ErrorIs(t, err, image.ErrUnknownFormat)

	_, err = image.Detect(nil)
	assert.ErrorIs(t, err, image.ErrUnknownFormat)
}

func TestDetectELFWithoutBTFSection(t *testing.T) {
	_, err := image.Detect(minimalELF(t))
	assert.ErrorIs(t, err, image.ErrNoBTFSection)
}

func TestBannerRequiresELF(t *testing.T) {
	_, err := image.Banner([]byte{0x9f, 0xeb, 0x01, 0x00})
	assert.ErrorIs(t, err, image.ErrNotELF)
}

func TestEndianOrder(t *testing.T) {
	assert.Equal(t, binary.LittleEndian, image.Little.Order())
	assert.Equal(t, binary.BigEndian, image.Big.Order())
	assert.Equal(t, "little", image.Little.String())
	assert.Equal(t, "big", image.Big.String())
}

// minimalELF builds a headers-only 64-bit little-endian ELF image with no
// sections.
func minimalELF(t *testing.T) []byte {
	t.Helper()

	buf := make([]byte, 64)
	copy(buf, []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2                                  // ELFCLASS64
	buf[5] = 1                                  // ELFDATA2LSB
	buf[6] = 1                                  // EV_CURRENT
	binary.LittleEndian.PutUint16(buf[16:], 2)  // e_type: ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:], 62) // e_machine: EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:], 1)  // e_version
	binary.LittleEndian.PutUint16(buf[52:], 64) // e_ehsize
	return buf
}
