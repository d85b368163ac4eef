// Package store is the replicated document store the room engine runs on.
// Documents are opaque JSON blobs keyed by id. Writers coordinate through
// Transaction; readers follow changes with Subscribe.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrConflict is returned when a transaction lost a race against another
	// writer. The caller may retry against the fresh document.
	ErrConflict = errors.New("store: version conflict")
)

// TxFunc receives the current document (nil when absent) and returns the next
// one. Returning a nil document deletes it; returning an error aborts the
// transaction and the error is passed back unchanged.
type TxFunc func(current []byte) ([]byte, error)

// ChangeFunc is called with every new version of a document, nil once deleted.
type ChangeFunc func(doc []byte)

type Store interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, id string, doc []byte) error
	// Update merges partial into the document's top-level fields.
	Update(ctx context.Context, id string, partial map[string]any) error
	Delete(ctx context.Context, id string) error
	// Transaction applies fn atomically against the latest version, or fails
	// with ErrConflict without writing anything.
	Transaction(ctx context.Context, id string, fn TxFunc) error
	// Subscribe delivers the current document and then every change until
	// the returned cancel func is called or ctx ends. Intermediate versions
	// may be coalesced; the latest one is always delivered.
	Subscribe(ctx context.Context, id string, onChange ChangeFunc) (cancel func(), err error)
	List(ctx context.Context) ([]string, error)
}

// mergeDocument overwrites the top-level fields of doc with partial.
func mergeDocument(doc []byte, partial map[string]any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	for k, v := range partial {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}
