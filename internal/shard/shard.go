// Package shard implements the on-disk shard (C3) and its per-collection
// registry, the shard manager (C4). A shard is one file holding the ordered
// document sequence of a single collection partition, plus a JSON side-car
// carrying document count and timestamps.
//
// © 2025 nyarudb authors. MIT License.
package shard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Voskan/nyarudb/internal/atomicfile"
	"github.com/Voskan/nyarudb/internal/codec"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Protection models the opaque file-protection tag named in spec §6. nyarudb
// never interprets it beyond recording it on the shard and passing it to
// applyProtection (protection.go), which is currently a no-op on every
// platform; that is the documented behavior for "opaque tag passed through
// to the OS" where no matching OS primitive is wired up.
type Protection uint8

const (
	ProtectionNone Protection = iota
	ProtectionComplete
	ProtectionCompleteUnlessOpen
	ProtectionCompleteUntilFirstUserAuth
)

// Metadata is the side-car content persisted next to a shard file.
type Metadata struct {
	DocumentCount int       `json:"documentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Info is a read-only snapshot of a shard's identity and metadata, returned
// by Manager.AllShardInfo.
type Info struct {
	ID       string
	Path     string
	Metadata Metadata
}

// Shard owns one on-disk file and its side-car. All mutating operations are
// serialized through mu, matching the teacher's per-instance actor
// convention: exactly one shard is the serialization domain for its file.
type Shard struct {
	mu sync.Mutex

	id          string
	path        string
	metaPath    string
	compression codec.Method
	protection  Protection
	logger      *zap.Logger

	metadata   Metadata
	cached     []byte // decompressed payload, valid iff cacheValid
	cacheValid bool
}

// Option configures a Shard at construction time.
type Option func(*Shard)

// WithLogger installs a logger used for recovered-error warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Shard) {
		if l != nil {
			s.logger = l
		}
	}
}

func newShard(id, path string, compression codec.Method, protection Protection, opts ...Option) *Shard {
	s := &Shard{
		id:          id,
		path:        path,
		metaPath:    path + ".meta.json",
		compression: compression,
		protection:  protection,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create makes a new shard file with an empty payload and a fresh side-car.
// It fails if a file already exists at path.
func Create(id, path string, compression codec.Method, protection Protection, opts ...Option) (*Shard, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("shard: %s already exists", path)
	}

	s := newShard(id, path, compression, protection, opts...)
	now := time.Now()
	s.metadata = Metadata{DocumentCount: 0, CreatedAt: now, UpdatedAt: now}

	empty, err := codec.Compress([]byte("[]"), compression)
	if err != nil {
		return nil, fmt.Errorf("shard: compress empty payload: %w", err)
	}
	if err := atomicfile.Write(s.path, empty, protectionPerm(protection)); err != nil {
		return nil, fmt.Errorf("shard: create %s: %w", path, err)
	}
	if err := applyProtection(s.path, protection); err != nil {
		return nil, fmt.Errorf("shard: apply protection %s: %w", path, err)
	}
	if err := s.writeMetaLocked(); err != nil {
		return nil, err
	}
	s.cached = []byte("[]")
	s.cacheValid = true
	return s, nil
}

// Open attaches to an existing shard file at path. A missing or corrupt
// side-car is recovered locally to a default Metadata (document count 0,
// both timestamps set to now): the shard remains usable and a warning is
// logged.
func Open(id, path string, compression codec.Method, protection Protection, opts ...Option) (*Shard, error) {
	s := newShard(id, path, compression, protection, opts...)

	raw, err := os.ReadFile(s.metaPath)
	switch {
	case err == nil:
		var m Metadata
		if jsonErr := json.Unmarshal(raw, &m); jsonErr != nil {
			s.logger.Warn("shard: corrupt side-car, substituting defaults",
				zap.String("path", s.metaPath), zap.Error(jsonErr))
			s.metadata = defaultMetadata()
		} else {
			s.metadata = m
		}
	case errors.Is(err, os.ErrNotExist):
		s.logger.Warn("shard: missing side-car, substituting defaults",
			zap.String("path", s.metaPath))
		s.metadata = defaultMetadata()
	default:
		return nil, fmt.Errorf("shard: read side-car %s: %w", s.metaPath, err)
	}

	return s, nil
}

func defaultMetadata() Metadata {
	now := time.Now()
	return Metadata{DocumentCount: 0, CreatedAt: now, UpdatedAt: now}
}

// ID returns the shard's partition id ("default" when the collection has no
// partition key).
func (s *Shard) ID() string { return s.id }

// Path returns the shard's on-disk payload path.
func (s *Shard) Path() string { return s.path }

// Metadata returns a copy of the shard's current metadata.
func (s *Shard) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Info returns a read-only snapshot of id, path and metadata.
func (s *Shard) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{ID: s.id, Path: s.path, Metadata: s.metadata}
}

// UpdateMetadata performs a metadata-only write: the payload file is left
// untouched.
func (s *Shard) UpdateMetadata(documentCount int, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata.DocumentCount = documentCount
	s.metadata.UpdatedAt = updatedAt
	return s.writeMetaLocked()
}

func (s *Shard) writeMetaLocked() error {
	raw, err := json.Marshal(s.metadata)
	if err != nil {
		return fmt.Errorf("shard: marshal side-car: %w", err)
	}
	if err := atomicfile.Write(s.metaPath, raw, 0o644); err != nil {
		return fmt.Errorf("shard: write side-car %s: %w", s.metaPath, err)
	}
	return nil
}

// rawLocked returns the decompressed payload bytes, consulting (and, on
// miss, populating) the in-memory cache. Caller must hold s.mu.
func (s *Shard) rawLocked() ([]byte, error) {
	if s.cacheValid {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.cached = []byte("[]")
		s.cacheValid = true
		return s.cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shard: read %s: %w", s.path, err)
	}

	raw, err := codec.Decompress(data, s.compression)
	if err != nil {
		return nil, fmt.Errorf("shard: decompress %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		raw = []byte("[]")
	}
	s.cached = raw
	s.cacheValid = true
	return raw, nil
}

// LoadDocuments decodes every document currently stored in the shard as a
// []T. It consults the shard's in-memory cache and returns an empty slice
// (never an error) for a shard whose file does not yet exist.
func LoadDocuments[T any](s *Shard) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.rawLocked()
	if err != nil {
		return nil, err
	}

	docs := []T{}
	if err := jsonAPI.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("shard: decode %s: %w", s.path, err)
	}
	return docs, nil
}

// SaveDocuments encodes docs, compresses the result, writes it atomically,
// updates metadata (document count, updatedAt) and refreshes the cache.
func SaveDocuments[T any](s *Shard, docs []T) error {
	raw, err := jsonAPI.Marshal(docs)
	if err != nil {
		return fmt.Errorf("shard: encode: %w", err)
	}

	compressed, err := codec.Compress(raw, s.compression)
	if err != nil {
		return fmt.Errorf("shard: compress %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicfile.Write(s.path, compressed, protectionPerm(s.protection)); err != nil {
		return fmt.Errorf("shard: write %s: %w", s.path, err)
	}
	if err := applyProtection(s.path, s.protection); err != nil {
		return fmt.Errorf("shard: apply protection %s: %w", s.path, err)
	}

	s.metadata.DocumentCount = len(docs)
	s.metadata.UpdatedAt = time.Now()
	if err := s.writeMetaLocked(); err != nil {
		return err
	}

	s.cached = raw
	s.cacheValid = true
	return nil
}

// AppendDocument is equivalent to SaveDocuments(LoadDocuments(s) ++ [doc]):
// the whole shard is the atomicity unit for a single append.
func AppendDocument[T any](s *Shard, doc T) error {
	docs, err := LoadDocuments[T](s)
	if err != nil {
		return err
	}
	docs = append(docs, doc)
	return SaveDocuments(s, docs)
}

func protectionPerm(Protection) os.FileMode {
	// The protection tag is an opaque OS attribute, not a Unix permission
	// bit; every protection level is written with the same conservative
	// mode and the tag itself is applied (where the platform supports it)
	// by applyProtection.
	return 0o644
}
