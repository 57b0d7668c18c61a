package stream_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/btf2json/internal/stream"
)

func TestReadLittleEndian(t *testing.T) {
	r := stream.NewReader([]byte{0x9f, 0xeb, 0x01, 0x00, 0x78, 0x56, 0x34, 0x12}, binary.LittleEndian)

	v16, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xeb9f), v16)

	v8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v8)

	require.NoError(t, r.Skip(1))

	v32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v32)

	assert.Equal(t, 0, r.Remaining())
}

func TestReadBigEndian(t *testing.T) {
	r := stream.NewReader([]byte{0xeb, 0x9f, 0x12, 0x34, 0x56, 0x78}, binary.BigEndian)

	v16, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xeb9f), v16)

	v32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v32)
}

func TestReadPastEnd(t *testing.T) {
	r := stream.NewReader([]byte{0x01, 0x02}, binary.LittleEndian)

	_, err := r.ReadU32()
	assert.ErrorIs(t, err, stream.ErrUnexpectedEOF)

	assert.ErrorIs(t, r.Skip(3), stream.ErrUnexpectedEOF)
}

func TestReadI32(t *testing.T) {
	r := stream.NewReader([]byte{0xff, 0xff, 0xff, 0xff}, binary.LittleEndian)

	v, err := r.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
}

func TestCStringAt(t *testing.T) {
	data := []byte("\x00int\x00char\x00")
	r := stream.NewReader(data, binary.LittleEndian)

	s, err := r.CStringAt(1)
	require.NoError(t, err)
	assert.Equal(t, "int", s)

	s, err = r.CStringAt(5)
	require.NoError(t, err)
	assert.Equal(t, "char", s)

	// position is unaffected
	assert.Equal(t, 0, r.Offset())

	_, err = r.CStringAt(100)
	assert.ErrorIs(t, err, stream.ErrUnexpectedEOF)

	_, err = stream.NewReader([]byte("abc"), binary.LittleEndian).CStringAt(0)
	assert.ErrorIs(t, err, stream.ErrInvalidString)
}

func TestSlice(t *testing.T) {
	r := stream.NewReader([]byte{1, 2, 3, 4, 5, 6}, binary.LittleEndian)

	sub, err := r.Slice(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5}, sub.Data())

	_, err = r.Slice(4, 10)
	assert.ErrorIs(t, err, stream.ErrUnexpectedEOF)
}

func TestSetOffset(t *testing.T) {
	r := stream.NewReader([]byte{1, 2, 3}, binary.LittleEndian)

	require.NoError(t, r.SetOffset(2))
	v, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), v)

	assert.ErrorIs(t, r.SetOffset(-1), stream.ErrNegativeOffset)
}
