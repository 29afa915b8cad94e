// Package codec implements the shard payload compression methods used by
// nyarudb: none, gzip, lzfse and lz4. All four satisfy the same round-trip
// law — Decompress(Compress(x, m), m) == x for every non-empty x — and never
// return partial output on failure.
//
// © 2025 nyarudb authors. MIT License.
package codec

import (
	"bytes"
	"fmt"
	"io"

	gzip "github.com/klauspost/compress/gzip"
	lz4 "github.com/pierrec/lz4/v4"
)

// Method identifies a compression algorithm understood by the codec.
type Method uint8

const (
	// None stores the payload as-is.
	None Method = iota
	// Gzip frames the payload with deflate + gzip headers.
	Gzip
	// LZFSE is a flate-backed stand-in for Apple's LZFSE (see lzfse.go in
	// this package for why no native implementation is used).
	LZFSE
	// LZ4 uses the LZ4 block/frame format.
	LZ4
)

// String renders the method name, primarily for logging and error messages.
func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case LZFSE:
		return "lzfse"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Parse maps a method name (as stored in collection configuration) back to a
// Method value.
func Parse(name string) (Method, error) {
	switch name {
	case "none", "":
		return None, nil
	case "gzip":
		return Gzip, nil
	case "lzfse":
		return LZFSE, nil
	case "lz4":
		return LZ4, nil
	default:
		return 0, fmt.Errorf("codec: unknown method %q", name)
	}
}

// Error wraps a codec failure together with the method that produced it.
type Error struct {
	Method    Method
	Operation string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s %s failed: %v", e.Method, e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(method Method, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Method: method, Operation: op, Err: err}
}

// Compress encodes data with the given method. Empty input is returned
// unchanged regardless of method.
func Compress(data []byte, m Method) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch m {
	case None:
		return data, nil
	case Gzip:
		return compressGzip(data)
	case LZFSE:
		return compressLZFSE(data)
	case LZ4:
		return compressLZ4(data)
	default:
		return nil, wrapErr(m, "compress", fmt.Errorf("unsupported method"))
	}
}

// Decompress decodes data previously produced by Compress with the same
// method. Empty input is returned unchanged regardless of method.
func Decompress(data []byte, m Method) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch m {
	case None:
		return data, nil
	case Gzip:
		return decompressGzip(data)
	case LZFSE:
		return decompressLZFSE(data)
	case LZ4:
		return decompressLZ4(data)
	default:
		return nil, wrapErr(m, "decompress", fmt.Errorf("unsupported method"))
	}
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, wrapErr(Gzip, "compress", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, wrapErr(Gzip, "compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, wrapErr(Gzip, "compress", err)
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, wrapErr(Gzip, "decompress", err)
	}
	defer r.Close()

	out, err := readAllChunked(r)
	if err != nil {
		return nil, wrapErr(Gzip, "decompress", err)
	}
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, wrapErr(LZ4, "compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, wrapErr(LZ4, "compress", err)
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := readAllChunked(r)
	if err != nil {
		return nil, wrapErr(LZ4, "decompress", err)
	}
	return out, nil
}

// readAllChunked drains r into a growable buffer without assuming an upper
// size bound on the decompressed payload.
func readAllChunked(r io.Reader) ([]byte, error) {
	const chunk = 64 * 1024
	buf := bytes.NewBuffer(make([]byte, 0, chunk))
	_, err := io.CopyBuffer(buf, r, make([]byte, chunk))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
