package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSeeder struct {
	last string
	err  error
}

func (s stubSeeder) LastCompletedQuery(ctx context.Context) (string, error) {
	return s.last, s.err
}

func TestNext(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "a"},
		{"a", "b"},
		{"y", "z"},
		{"z", "0"},
		{"0", "1"},
		{"9", "aa"},
		{"az", "a0"},
		{"a9", "ba"},
		{"zz", "z0"},
		{"z9", "0a"},
		{"99", "aaa"},
		{"aaaa", "aaab"},
		{"aaa9", "aaba"},
		{"9999", "aaaaa"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.in))
		})
	}
}

func TestNext_ForeignSymbolResets(t *testing.T) {
	// A symbol outside the alphabet resets its position to 'a'.
	assert.Equal(t, "aba", Next("ab-"))
}

func TestNext_VisitsEveryStringInOrder(t *testing.T) {
	// Walk the whole one- and two-character space: 36 + 36*36 strings.
	const steps = 36 + 36*36

	seen := make(map[string]bool, steps)
	s := "a"
	for i := 0; i < steps; i++ {
		require.False(t, seen[s], "revisited %q", s)
		seen[s] = true

		next := Next(s)
		require.True(t, lessLengthLex(s, next), "%q -> %q is not an advance", s, next)
		s = next
	}

	// After exhausting lengths 1 and 2, the walk lands on the first
	// three-character string.
	assert.Equal(t, "aaa", s)
	assert.Len(t, seen, steps)
}

// lessLengthLex orders by length first, then alphabet position.
func lessLengthLex(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := 0; i < len(a); i++ {
		ai := indexOf(a[i])
		bi := indexOf(b[i])
		if ai != bi {
			return ai < bi
		}
	}
	return false
}

func indexOf(c byte) int {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return i
		}
	}
	return -1
}

func TestGenerator_FreshStart(t *testing.T) {
	g := NewGenerator(stubSeeder{})

	batch, err := g.Batch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa", "aaab", "aaac"}, batch)
	assert.Equal(t, "aaac", g.Current())
}

func TestGenerator_FreshStartEmitsSeedOnlyOnce(t *testing.T) {
	g := NewGenerator(stubSeeder{})

	first, err := g.Batch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa", "aaab"}, first)

	second, err := g.Batch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaac", "aaad"}, second)
}

func TestGenerator_ResumesAfterLastCompleted(t *testing.T) {
	g := NewGenerator(stubSeeder{last: "aaaf"})

	batch, err := g.Batch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaag", "aaah"}, batch)
}

func TestGenerator_ResumeDoesNotReemitCompletedSeed(t *testing.T) {
	// Even when the highest completed prefix is the bootstrap value, it
	// must not be handed out again.
	g := NewGenerator(stubSeeder{last: "aaaa"})

	batch, err := g.Batch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaab"}, batch)
}

func TestGenerator_SeederErrorPropagates(t *testing.T) {
	g := NewGenerator(stubSeeder{err: errors.New("db down")})

	_, err := g.Batch(context.Background(), 1)
	require.Error(t, err)
}

func TestGenerator_ZeroCount(t *testing.T) {
	g := NewGenerator(stubSeeder{last: "aaaf"})

	batch, err := g.Batch(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
