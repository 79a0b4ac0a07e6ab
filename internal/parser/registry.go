package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps formats to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[Format]Parser
}

// NewRegistry creates a registry holding the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[Format]Parser, len(parsers))}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the parser for p.Format().
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Format()] = p
}

// Get returns the parser for format, matched case-insensitively.
func (r *Registry) Get(format Format) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[Format(strings.ToLower(string(format)))]
	if !ok {
		return nil, fmt.Errorf("unsupported statement format: %s", format)
	}
	return p, nil
}

// Formats lists the registered formats in sorted order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
