// Package stream provides binary reading utilities for BTF parsing.
package stream

import (
	"encoding/binary"
	"errors"
)

// Errors returned by Reader
var (
	ErrUnexpectedEOF  = errors.New("stream: unexpected end of data")
	ErrInvalidString  = errors.New("stream: invalid string encoding")
	ErrNegativeOffset = errors.New("stream: negative offset")
)

// Reader provides methods for reading binary data from a BTF section.
// Multi-byte values are read in the byte order of the section, which is
// determined by the BTF magic.
type Reader struct {
	data   []byte
	order  binary.ByteOrder
	offset int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order, offset: 0}
}

// Order returns the byte order used by this reader.
func (r *Reader) Order() binary.ByteOrder {
	return r.order
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// SetOffset sets the read position.
func (r *Reader) SetOffset(offset int) error {
	if offset < 0 {
		return ErrNegativeOffset
	}
	r.offset = offset
	return nil
}

// Remaining returns the number of bytes remaining.
func (r *Reader) Remaining() int {
	if r.offset >= len(r.data) {
		return 0
	}
	return len(r.data) - r.offset
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if r.offset+n > len(r.data) {
		return ErrUnexpectedEOF
	}
	r.offset += n
	return nil
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	if r.offset >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// ReadU16 reads an unsigned 16-bit integer.
func (r *Reader) ReadU16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.order.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// ReadU32 reads an unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.order.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

// ReadU64 reads an unsigned 64-bit integer.
func (r *Reader) ReadU64() (uint64, error) {
	if r.offset+8 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.order.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

// ReadI32 reads a signed 32-bit integer.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadBytesRef returns a reference to n bytes without copying.
// The returned slice is only valid as long as the underlying data.
func (r *Reader) ReadBytesRef(n int) ([]byte, error) {
	if r.offset+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	v := r.data[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

// CStringAt reads a null-terminated string starting at the given absolute
// offset without moving the read position.
func (r *Reader) CStringAt(offset int) (string, error) {
	if offset < 0 || offset >= len(r.data) {
		return "", ErrUnexpectedEOF
	}
	end := offset
	for end < len(r.data) {
		if r.data[end] == 0 {
			return string(r.data[offset:end]), nil
		}
		end++
	}
	return "", ErrInvalidString
}

// Slice returns a new Reader for a subset of the data.
func (r *Reader) Slice(offset, length int) (*Reader, error) {
	if offset < 0 || length < 0 || offset+length > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	return NewReader(r.data[offset:offset+length], r.order), nil
}

// Data returns the underlying byte slice.
func (r *Reader) Data() []byte {
	return r.data
}
