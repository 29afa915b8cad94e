package btree

import (
	"bytes"
	"cmp"
	"fmt"
	"os"

	gzip "github.com/klauspost/compress/gzip"
	jsoniter "github.com/json-iterator/go"

	"github.com/Voskan/nyarudb/internal/atomicfile"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// dto mirrors the on-disk node shape named in spec: {keys, values, children,
// isLeaf}, root at the top level.
type dto[K cmp.Ordered] struct {
	Keys     []K      `json:"keys"`
	Values   [][]byte `json:"values"`
	ValueLen []int    `json:"valueLen"`
	Children []dto[K] `json:"children"`
	IsLeaf   bool     `json:"isLeaf"`
}

// toDTO flattens the parallel value lists into one concatenated byte blob
// plus per-key lengths so jsoniter does not need to marshal [][][]byte.
func toDTO[K cmp.Ordered](n *node[K]) dto[K] {
	d := dto[K]{
		Keys:   append([]K(nil), n.keys...),
		IsLeaf: n.leaf,
	}
	for _, vs := range n.values {
		d.ValueLen = append(d.ValueLen, len(vs))
		d.Values = append(d.Values, vs...)
	}
	for _, c := range n.children {
		d.Children = append(d.Children, toDTO(c))
	}
	return d
}

func fromDTO[K cmp.Ordered](d dto[K]) *node[K] {
	n := newNode[K](d.IsLeaf)
	n.keys = append([]K(nil), d.Keys...)

	offset := 0
	for _, l := range d.ValueLen {
		n.values = append(n.values, append([][]byte(nil), d.Values[offset:offset+l]...))
		offset += l
	}
	for _, cd := range d.Children {
		n.children = append(n.children, fromDTO(cd))
	}
	return n
}

// Persist serializes the tree, gzip-compresses the result and writes it
// atomically to path.
func (tr *Tree[K]) Persist(path string) error {
	tr.mu.RLock()
	d := toDTO(tr.root)
	tr.mu.RUnlock()

	raw, err := jsonAPI.Marshal(d)
	if err != nil {
		return fmt.Errorf("btree: marshal: %w", err)
	}

	var buf []byte
	buf, err = gzipCompress(raw)
	if err != nil {
		return fmt.Errorf("btree: compress: %w", err)
	}

	if err := atomicfile.Write(path, buf, 0o644); err != nil {
		return fmt.Errorf("btree: write %s: %w", path, err)
	}
	return nil
}

// Load reads a tree previously written by Persist from path, replacing the
// receiver's root and key count.
func (tr *Tree[K]) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("btree: read %s: %w", path, err)
	}

	decompressed, err := gzipDecompress(raw)
	if err != nil {
		return fmt.Errorf("btree: decompress %s: %w", path, err)
	}

	var d dto[K]
	if err := jsonAPI.Unmarshal(decompressed, &d); err != nil {
		return fmt.Errorf("btree: unmarshal %s: %w", path, err)
	}

	root := fromDTO(d)

	tr.mu.Lock()
	tr.root = root
	tr.count = countValues(root)
	tr.mu.Unlock()
	return nil
}

func countValues[K cmp.Ordered](n *node[K]) int {
	total := 0
	for _, vs := range n.values {
		total += len(vs)
	}
	for _, c := range n.children {
		total += countValues(c)
	}
	return total
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
