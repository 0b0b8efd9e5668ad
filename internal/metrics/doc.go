// Package metrics provides Prometheus-based metrics collection for the
// orchestration core. A Collector registers counter, gauge, and histogram
// vectors under one namespace; it is fed from the lifecycle event stream
// plus periodic gauge updates, and the cmd layer exposes the registry over
// /metrics.
//
// This package is internal and should not be imported by external projects.
package metrics
