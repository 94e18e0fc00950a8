// Package progress carries per-task stage events from workers to pluggable
// sinks. Workers emit through a non-blocking Hub which batches events on a
// background goroutine and fans each batch out to every sink.
package progress
