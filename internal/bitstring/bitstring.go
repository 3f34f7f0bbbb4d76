// Package bitstring implements the fixed-length bit array used by the
// status-list credential format: get/set at an integer index, and a
// gzip-of-raw-bytes, then base64url, transport encoding with no padding.
package bitstring

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedEncoding is returned by Decode when the input is not valid
// base64url, is not valid gzip, or decompresses to a length other than the
// one the caller expects.
var ErrMalformedEncoding = errors.New("bitstring: malformed encoding")

// ErrIndexOutOfRange is returned by Get/Set for an index outside [0, N).
var ErrIndexOutOfRange = errors.New("bitstring: index out of range")

// Bitstring is a fixed-length array of bits, stored one bit per position in
// a packed byte slice (MSB-first within each byte, matching the W3C
// StatusList2021 bit-ordering convention).
type Bitstring struct {
	length int
	bits   []byte
}

// New allocates a zeroed Bitstring of the given length. length must be a
// power of two >= 1024, per the Status List invariant in the data model.
func New(length int) (*Bitstring, error) {
	if length < 1024 || length&(length-1) != 0 {
		return nil, fmt.Errorf("bitstring: length %d must be a power of two >= 1024", length)
	}
	return &Bitstring{
		length: length,
		bits:   make([]byte, (length+7)/8),
	}, nil
}

// Len returns the bitstring's fixed length.
func (b *Bitstring) Len() int { return b.length }

// Get returns the bit at index i.
func (b *Bitstring) Get(i int) (bool, error) {
	if i < 0 || i >= b.length {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	byteIdx, bitIdx := i/8, uint(i%8)
	return b.bits[byteIdx]&(0x80>>bitIdx) != 0, nil
}

// Set sets the bit at index i to v.
func (b *Bitstring) Set(i int, v bool) error {
	if i < 0 || i >= b.length {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	byteIdx, bitIdx := i/8, uint(i%8)
	if v {
		b.bits[byteIdx] |= 0x80 >> bitIdx
	} else {
		b.bits[byteIdx] &^= 0x80 >> bitIdx
	}
	return nil
}

// Encode gzips the packed byte array and base64url-encodes it with no
// padding, matching the W3C StatusList2021 encodedList format.
func (b *Bitstring) Encode() (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(b.bits); err != nil {
		return "", fmt.Errorf("bitstring: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("bitstring: gzip close: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode, reconstructing a Bitstring of the given length.
// It fails with ErrMalformedEncoding on invalid base64url, invalid gzip, or
// a decompressed length that disagrees with length.
func Decode(encoded string, length int) (*Bitstring, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64url: %v", ErrMalformedEncoding, err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrMalformedEncoding, err)
	}
	defer gz.Close()

	want := (length + 7) / 8
	raw, err := io.ReadAll(io.LimitReader(gz, int64(want)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip read: %v", ErrMalformedEncoding, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrMalformedEncoding, len(raw), want)
	}
	return &Bitstring{length: length, bits: raw}, nil
}
