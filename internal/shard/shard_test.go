package shard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voskan/nyarudb/internal/codec"
)

type testDoc struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestCreateSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.nyaru")

	s, err := Create("default", path, codec.Gzip, ProtectionNone)
	require.NoError(t, err)

	docs, err := LoadDocuments[testDoc](s)
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, AppendDocument(s, testDoc{ID: 1, Name: "Test"}))

	docs, err = LoadDocuments[testDoc](s)
	require.NoError(t, err)
	assert.Equal(t, []testDoc{{ID: 1, Name: "Test"}}, docs)
	assert.Equal(t, 1, s.Metadata().DocumentCount)
}

func TestCreateFailsIfAlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A.nyaru")
	_, err := Create("A", path, codec.None, ProtectionNone)
	require.NoError(t, err)

	_, err = Create("A", path, codec.None, ProtectionNone)
	require.Error(t, err)
}

func TestOpenRecoversMissingSideCar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "B.nyaru")

	s, err := Create("B", path, codec.None, ProtectionNone)
	require.NoError(t, err)
	require.NoError(t, AppendDocument(s, testDoc{ID: 1, Name: "x"}))

	// Simulate a missing side-car.
	require.NoError(t, os.Remove(s.metaPath))

	reopened, err := Open("B", path, codec.None, ProtectionNone)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Metadata().DocumentCount)

	docs, err := LoadDocuments[testDoc](reopened)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestLazyIteratorHonoursCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "C.nyaru")
	s, err := Create("C", path, codec.LZ4, ProtectionNone)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, AppendDocument(s, testDoc{ID: i}))
	}

	it, err := LoadDocumentsLazy[testDoc](s)
	require.NoError(t, err)
	defer it.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, d.ID)

	cancel()
	_, ok, err = it.Next(ctx)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestLazyIteratorYieldsAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "D.nyaru")
	s, err := Create("D", path, codec.Gzip, ProtectionNone)
	require.NoError(t, err)

	want := []testDoc{{ID: 1}, {ID: 2}, {ID: 3}}
	require.NoError(t, SaveDocuments(s, want))

	it, err := LoadDocumentsLazy[testDoc](s)
	require.NoError(t, err)
	defer it.Close()

	var got []testDoc
	for {
		d, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, d)
	}
	assert.Equal(t, want, got)
}
