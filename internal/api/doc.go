// Package api exposes the operational HTTP surface of a batch run:
// liveness, readiness and Prometheus metrics.
package api
