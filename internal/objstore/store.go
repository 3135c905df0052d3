// Package objstore archives artifact payloads under class-specific key
// prefixes. Keys are "prefix/name".
package objstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Store is the archive the change detector reads from and writes to.
type Store interface {
	// List returns every key under prefix. Implementations enumerate
	// page by page where the backend paginates.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the object's bytes, or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes body under key, replacing any previous object.
	Put(ctx context.Context, key string, body []byte) error
}

// Key joins a class prefix and an artifact name.
func Key(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Names lists the artifact names archived under prefix: the last path
// segment of every key.
func Names(ctx context.Context, s Store, prefix string) ([]string, error) {
	listPrefix := strings.Trim(prefix, "/")
	if listPrefix != "" {
		listPrefix += "/"
	}
	keys, err := s.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := k[strings.LastIndex(k, "/")+1:]
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// StoreError reports a failed store operation.
type StoreError struct {
	Op  string // "list", "get" or "put"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a store failure other than a
// missing object.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && !errors.Is(err, ErrNotFound)
}
