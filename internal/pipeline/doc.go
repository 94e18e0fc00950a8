// Package pipeline runs one batch of fetch tasks end to end: validation,
// run bookkeeping, worker fan-out and the final report.
package pipeline
