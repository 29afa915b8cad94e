package codec

// No package in the retrieval corpus ships a Go implementation of Apple's
// LZFSE algorithm (it is normally reached through cgo bindings to the
// platform library, which would break cross-compilation for a single-host
// embedded store). lzfseMagic frames a compress/flate stream so that the
// method still round-trips exactly like the other three and a payload
// written under the wrong method fails fast instead of silently decoding
// garbage, rather than silently aliasing to gzip.
//
// This is the one codec path in the package built directly on the standard
// library; see DESIGN.md for the justification.

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
)

var lzfseMagic = [4]byte{'n', 'L', 'Z', 'F'}

func compressLZFSE(data []byte) ([]byte, error) {
	var body bytes.Buffer
	w, err := flate.NewWriter(&body, flate.BestCompression)
	if err != nil {
		return nil, wrapErr(LZFSE, "compress", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, wrapErr(LZFSE, "compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, wrapErr(LZFSE, "compress", err)
	}

	out := make([]byte, 0, 4+8+body.Len())
	out = append(out, lzfseMagic[:]...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	out = append(out, lenBuf[:]...)
	out = append(out, body.Bytes()...)
	return out, nil
}

func decompressLZFSE(data []byte) ([]byte, error) {
	if len(data) < 12 || !bytes.Equal(data[:4], lzfseMagic[:]) {
		return nil, wrapErr(LZFSE, "decompress", fmt.Errorf("bad frame header"))
	}
	wantLen := binary.BigEndian.Uint64(data[4:12])

	r := flate.NewReader(bytes.NewReader(data[12:]))
	defer r.Close()

	out, err := readAllChunked(r)
	if err != nil {
		return nil, wrapErr(LZFSE, "decompress", err)
	}
	if uint64(len(out)) != wantLen {
		return nil, wrapErr(LZFSE, "decompress", fmt.Errorf("length mismatch: frame declares %d, got %d", wantLen, len(out)))
	}
	return out, nil
}
