package shard

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// jsoniterIterator wraps a borrowed json-iterator Iterator so lazy.go can
// decode one JSON array element at a time.
type jsoniterIterator struct {
	iter *jsoniter.Iterator
}

func newJSONIterator(raw []byte) *jsoniterIterator {
	return &jsoniterIterator{iter: jsonAPI.BorrowIterator(raw)}
}

func (j *jsoniterIterator) readArrayElement(v any) (bool, error) {
	if !j.iter.ReadArray() {
		if err := j.iter.Error; err != nil && err != io.EOF {
			return false, err
		}
		return false, nil
	}
	j.iter.ReadVal(v)
	if err := j.iter.Error; err != nil && err != io.EOF {
		return false, err
	}
	return true, nil
}

func (j *jsoniterIterator) release() {
	jsonAPI.ReturnIterator(j.iter)
}
