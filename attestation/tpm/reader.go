package tpm

import (
	"encoding/binary"
	"fmt"
)

// reader is a forward-only big-endian cursor over a TPM structure encoding,
// as defined by [TPMv2-Part1] Annex on wire representation.
type reader struct {
	buf []byte
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) uint16() (uint16, error) {
	if len(r.buf) < 2 {
		return 0, fmt.Errorf("tpm: unexpected end of buffer reading UINT16")
	}
	v := binary.BigEndian.Uint16(r.buf[:2])
	r.buf = r.buf[2:]
	return v, nil
}

func (r *reader) uint32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, fmt.Errorf("tpm: unexpected end of buffer reading UINT32")
	}
	v := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if len(r.buf) < 8 {
		return 0, fmt.Errorf("tpm: unexpected end of buffer reading UINT64")
	}
	v := binary.BigEndian.Uint64(r.buf[:8])
	r.buf = r.buf[8:]
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || len(r.buf) < n {
		return nil, fmt.Errorf("tpm: unexpected end of buffer reading %d bytes", n)
	}
	v := r.buf[:n]
	r.buf = r.buf[n:]
	return v, nil
}

// sized reads a TPM2B_* field: a UINT16 size prefix followed by that many
// bytes of content.
func (r *reader) sized() ([]byte, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}
