package shard

import (
	"context"
	"io"
)

// Iterator yields the documents of a shard one at a time. Decoding is
// deferred until Next is called, so cancellation between items is honored
// and a caller that stops early never pays for decoding the remainder.
type Iterator[T any] struct {
	it     *jsoniterIterator
	closed bool
}

// LoadDocumentsLazy reads (and decompresses) the shard payload once, then
// hands back an Iterator that decodes one document per Next call.
func LoadDocumentsLazy[T any](s *Shard) (*Iterator[T], error) {
	s.mu.Lock()
	raw, err := s.rawLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &Iterator[T]{it: newJSONIterator(raw)}, nil
}

// Next returns the next document, or ok == false when the sequence is
// exhausted or the iterator has been closed. ctx cancellation is checked
// before every decode.
func (it *Iterator[T]) Next(ctx context.Context) (doc T, ok bool, err error) {
	if it.closed {
		return doc, false, nil
	}

	select {
	case <-ctx.Done():
		it.Close()
		return doc, false, ctx.Err()
	default:
	}

	more, err := it.it.readArrayElement(&doc)
	if err != nil && err != io.EOF {
		it.Close()
		return doc, false, err
	}
	if !more {
		it.Close()
		return doc, false, nil
	}
	return doc, true, nil
}

// Close releases the iterator's resources. Safe to call multiple times and
// safe to call before exhausting the sequence (cancellation path).
func (it *Iterator[T]) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.it.release()
}
