package service

import (
	"math/rand"
	"sync"
	"time"
)

// NameGenerator builds fairy names from the catalog's prefixes and suffixes.
type NameGenerator struct {
	mu       sync.Mutex
	r        *rand.Rand
	prefixes []string
	suffixes []string
}

func NewNameGenerator(prefixes, suffixes []string) *NameGenerator {
	return NewSeededNameGenerator(prefixes, suffixes, time.Now().UnixNano())
}

// NewSeededNameGenerator gives a reproducible sequence of names.
func NewSeededNameGenerator(prefixes, suffixes []string, seed int64) *NameGenerator {
	return &NameGenerator{
		r:        rand.New(rand.NewSource(seed)),
		prefixes: append([]string(nil), prefixes...),
		suffixes: append([]string(nil), suffixes...),
	}
}

// Name returns "<prefix> <suffix>". The fairy type itself is the prefix
// when it is one of the known prefixes.
func (g *NameGenerator) Name(fairyType string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	prefix := fairyType
	if !contains(g.prefixes, fairyType) {
		prefix = g.pick(g.prefixes)
	}
	suffix := g.pick(g.suffixes)
	switch {
	case prefix == "":
		return suffix
	case suffix == "":
		return prefix
	}
	return prefix + " " + suffix
}

func (g *NameGenerator) pick(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[g.r.Intn(len(values))]
}
