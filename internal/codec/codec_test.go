package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	methods := []Method{None, Gzip, LZFSE, LZ4}
	payloads := [][]byte{
		[]byte("hello world"),
		[]byte(`[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]`),
		make([]byte, 256*1024), // exercise chunked decode path
	}

	for _, m := range methods {
		for _, p := range payloads {
			compressed, err := Compress(p, m)
			require.NoError(t, err, "method=%s", m)

			decompressed, err := Decompress(compressed, m)
			require.NoError(t, err, "method=%s", m)

			assert.Equal(t, p, decompressed, "method=%s", m)
		}
	}
}

func TestEmptyInputIsIdentity(t *testing.T) {
	for _, m := range []Method{None, Gzip, LZFSE, LZ4} {
		compressed, err := Compress(nil, m)
		require.NoError(t, err)
		assert.Empty(t, compressed)

		decompressed, err := Decompress(nil, m)
		require.NoError(t, err)
		assert.Empty(t, decompressed)
	}
}

func TestDecompressMalformedFails(t *testing.T) {
	for _, m := range []Method{Gzip, LZFSE, LZ4} {
		_, err := Decompress([]byte("not a valid payload"), m)
		require.Error(t, err, "method=%s", m)
	}
}

func TestParseAndString(t *testing.T) {
	cases := map[string]Method{"none": None, "": None, "gzip": Gzip, "lzfse": LZFSE, "lz4": LZ4}
	for name, want := range cases {
		got, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := Parse("zstd")
	require.Error(t, err)

	assert.Equal(t, "gzip", Gzip.String())
}
