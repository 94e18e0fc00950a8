// Package sinks holds progress.Sink implementations for logs and Prometheus.
package sinks
