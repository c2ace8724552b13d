// Package cursor generates search prefixes in a fixed odometer order over a
// 36-symbol alphabet, resuming from the last durably completed prefix.
package cursor

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Alphabet is the ordered symbol set: letters strictly before digits. The
// resulting ordering over prefixes is length-then-lex ("zz" sorts before
// "aaa").
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// seedPrefix is where a fresh crawl starts. Four characters keeps result
// sets small enough that most prefixes finish under the pagination ceiling.
const seedPrefix = "aaaa"

// Next returns the immediate successor of s in odometer order. The empty
// string advances to "a". A carry replaces the exhausted position with 'a'
// and propagates left, growing the string only when every position carries:
// "z" -> "0", "9" -> "aa", "az" -> "a0", "99" -> "aaa".
func Next(s string) string {
	if s == "" {
		return "a"
	}
	last := s[len(s)-1]
	idx := strings.IndexByte(Alphabet, last)
	if idx < 0 {
		// Foreign symbol: reset the position and carry on from there.
		return s[:len(s)-1] + "a"
	}
	if idx < len(Alphabet)-1 {
		return s[:len(s)-1] + string(Alphabet[idx+1])
	}
	return Next(s[:len(s)-1]) + "a"
}

// Seeder supplies the highest completed query, or "" when none exists.
type Seeder interface {
	LastCompletedQuery(ctx context.Context) (string, error)
}

// Generator hands out batches of prefixes, advancing an in-memory cursor.
//
// The cursor is seeded from the completion table on first use and never
// persisted; durability comes from re-reading that table on the next cold
// start. Several processes may each run a Generator: overlapping batches
// waste work but stay harmless because registration rejects duplicates and
// completion records are idempotent.
type Generator struct {
	mu     sync.Mutex
	seeder Seeder

	current string
	seeded  bool

	// fresh is true when no completion existed at seed time; only then is
	// the seed prefix itself emitted before advancing.
	fresh   bool
	emitted bool
}

// NewGenerator creates a generator seeded lazily from s.
func NewGenerator(s Seeder) *Generator {
	return &Generator{seeder: s}
}

func (g *Generator) initialize(ctx context.Context) error {
	if g.seeded {
		return nil
	}
	last, err := g.seeder.LastCompletedQuery(ctx)
	if err != nil {
		return fmt.Errorf("seed cursor: %w", err)
	}
	if last == "" {
		g.current = seedPrefix
		g.fresh = true
	} else {
		// The stored value is already completed; the first advance in
		// Batch moves past it.
		g.current = last
	}
	g.seeded = true
	return nil
}

// Batch returns up to n distinct prefixes, advancing the cursor past each.
func (g *Generator) Batch(ctx context.Context, n int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.initialize(ctx); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]string, 0, n)
	if g.fresh && !g.emitted {
		out = append(out, g.current)
	}
	g.emitted = true

	for len(out) < n {
		g.current = Next(g.current)
		out = append(out, g.current)
	}
	return out, nil
}

// Current returns the cursor position. Diagnostic only.
func (g *Generator) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
