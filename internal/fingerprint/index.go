// Package fingerprint computes content fingerprints and tracks duplicates
// within a batch.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Normalize collapses every whitespace run to a single space and trims the
// ends. Case is preserved.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Compute returns the hex SHA-256 of the normalized text.
func Compute(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of observing a text.
type Result struct {
	Hash        string
	Duplicate   bool
	FirstTaskID string
}

// Index remembers fingerprints seen during a run. Safe for concurrent use.
type Index struct {
	mu   sync.Mutex
	seen map[string]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{seen: make(map[string]string)}
}

// Observe fingerprints text and records it for taskID. The lookup and insert
// happen under one lock so two concurrent tasks with the same text cannot
// both be reported as first. A task that seeded the hash in an earlier run
// is not its own duplicate.
func (i *Index) Observe(taskID, text string) Result {
	hash := Compute(text)
	i.mu.Lock()
	defer i.mu.Unlock()
	if first, ok := i.seen[hash]; ok {
		return Result{Hash: hash, Duplicate: first != taskID, FirstTaskID: first}
	}
	i.seen[hash] = taskID
	return Result{Hash: hash, FirstTaskID: taskID}
}

// Seed preloads a fingerprint recorded by an earlier run. Existing entries win.
func (i *Index) Seed(hash, taskID string) {
	if hash == "" {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[hash]; !ok {
		i.seen[hash] = taskID
	}
}

// Len returns the number of distinct fingerprints recorded.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}
