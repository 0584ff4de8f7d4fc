package detector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFailed(t *testing.T) {
	d := New()

	tests := []struct {
		name       string
		input      string
		wantFailed bool
		wantReason string
	}{
		{"empty", "", true, EmptyResultReason},
		{"whitespace", "   \n\t", true, EmptyResultReason},
		{"no relevant results", "No relevant results found.", true, "no relevant results"},
		{"could not find", "I could not find any glossary entry for that term.", true, "could not find"},
		{"regex no papers", "No papers were found for the query.", true, DefaultPatterns[0]},
		{"exception", "ValueError exception raised while parsing", true, "error"},
		{"timeout", "The upstream request timed out", true, DefaultPatterns[4]},
		{"success", "Retrieval-augmented generation combines a retriever with a generator.", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed, reason := d.IsFailed(tt.input)
			assert.Equal(t, tt.wantFailed, failed)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

// Known false positive: the default rules flag answers that merely mention
// errors. This test pins the current behavior.
func TestIsFailedKnownFalsePositive(t *testing.T) {
	d := New()

	failed, reason := d.IsFailed("The summary reduces errors significantly.")
	require.True(t, failed)
	require.Equal(t, "error", reason)
}

func TestRefinedRulesAvoidFalsePositive(t *testing.T) {
	d, err := NewWithRules(
		[]string{"no results found"},
		[]string{`^(?:error|exception)\b`, `(?<!reduces\s)\berrors?\b(?!\s+significantly)`},
	)
	require.NoError(t, err)

	failed, _ := d.IsFailed("The summary reduces errors significantly.")
	require.False(t, failed)

	failed, reason := d.IsFailed("Error: connection refused")
	require.True(t, failed)
	require.Equal(t, `^(?:error|exception)\b`, reason)
}

func TestLiteralsCheckedBeforePatterns(t *testing.T) {
	d := New()
	failed, reason := d.IsFailed("Search failed: no results found")
	require.True(t, failed)
	require.Equal(t, "no results found", reason)
}

func TestRuntimePatternManagement(t *testing.T) {
	d, err := NewWithRules(nil, nil)
	require.NoError(t, err)

	failed, _ := d.IsFailed("quota exhausted for today")
	require.False(t, failed)

	d.AddLiteral("  Quota Exhausted ")
	failed, reason := d.IsFailed("quota exhausted for today")
	require.True(t, failed)
	require.Equal(t, "quota exhausted", reason)

	require.True(t, d.RemoveLiteral("quota exhausted"))
	require.False(t, d.RemoveLiteral("quota exhausted"))

	require.NoError(t, d.AddPattern(`rate\s+limit`))
	failed, reason = d.IsFailed("Rate  limit reached")
	require.True(t, failed)
	require.Equal(t, `rate\s+limit`, reason)

	set := d.Patterns()
	require.Empty(t, set.Literals)
	require.Equal(t, []string{`rate\s+limit`}, set.Patterns)

	require.True(t, d.RemovePattern(`rate\s+limit`))
	require.False(t, d.RemovePattern(`rate\s+limit`))
	require.Empty(t, d.Patterns().Patterns)
}

func TestAddPatternRejectsInvalid(t *testing.T) {
	d := New()
	err := d.AddPattern(`(unclosed`)
	require.ErrorIs(t, err, ErrInvalidPattern)

	err = d.AddPattern("  ")
	require.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewWithRules(nil, []string{`[`})
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestPatternsSnapshotIsCopy(t *testing.T) {
	d := New()
	set := d.Patterns()
	set.Literals[0] = "mutated"
	require.Equal(t, DefaultLiterals[0], d.Patterns().Literals[0])
}

func TestConcurrentClassifyAndMutate(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.IsFailed("no results found")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.AddLiteral("temporary")
				d.RemoveLiteral("temporary")
			}
		}()
	}
	wg.Wait()

	var s Strategy = d
	require.True(t, s.Classify("no results found").Failed)
}
