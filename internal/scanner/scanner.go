// Package scanner maps feed-source kinds to their fetch strategies.
package scanner

import (
	"fmt"

	"MerchScanner/internal/ports"
)

// DefaultKind is assumed for sources that don't declare a strategy.
const DefaultKind = "rss"

// Registry keeps a mapping from source kinds to reader strategies.
type Registry struct {
	readers map[string]ports.FeedReader
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{readers: map[string]ports.FeedReader{}}
}

// Register adds or replaces the reader for a source kind.
func (r *Registry) Register(kind string, reader ports.FeedReader) {
	if r.readers == nil {
		r.readers = map[string]ports.FeedReader{}
	}
	r.readers[kind] = reader
}

// Resolve returns the reader for a kind, defaulting empty kinds to
// DefaultKind.
func (r *Registry) Resolve(kind string) (ports.FeedReader, error) {
	if kind == "" {
		kind = DefaultKind
	}
	if reader, ok := r.readers[kind]; ok {
		return reader, nil
	}
	return nil, fmt.Errorf("source kind %s is not registered", kind)
}
