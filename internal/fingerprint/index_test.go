package fingerprint

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeKnownDigest(t *testing.T) {
	t.Parallel()

	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	assert.Equal(t, want, Compute("hello world"))
	assert.Equal(t, want, Compute("  hello\n\n\tworld  "), "whitespace is collapsed")
	assert.NotEqual(t, want, Compute("Hello world"), "case is preserved")
	assert.Len(t, Compute(""), 64)
}

func TestObserveFlagsDuplicates(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	first := idx.Observe("a", "same article text")
	second := idx.Observe("b", "same   article\ntext")
	other := idx.Observe("c", "different text")

	assert.False(t, first.Duplicate)
	assert.Equal(t, "a", first.FirstTaskID)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "a", second.FirstTaskID)
	assert.Equal(t, first.Hash, second.Hash)
	assert.False(t, other.Duplicate)
	assert.NotEqual(t, first.Hash, other.Hash)
	assert.Equal(t, 2, idx.Len())
}

func TestSeedDoesNotOverride(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	hash := Compute("prior run")
	idx.Seed(hash, "old")
	idx.Seed(hash, "older")
	idx.Seed("", "ignored")

	res := idx.Observe("new", "prior run")
	assert.True(t, res.Duplicate)
	assert.Equal(t, "old", res.FirstTaskID)
}

func TestSeededTaskIsNotItsOwnDuplicate(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.Seed(Compute("same page"), "t1")

	res := idx.Observe("t1", "same page")
	assert.False(t, res.Duplicate)
	assert.Equal(t, "t1", res.FirstTaskID)
}

func TestObserveConcurrentSingleFirst(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res := idx.Observe(fmt.Sprintf("t%d", n), "shared body")
			if !res.Duplicate {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, firsts)
}
