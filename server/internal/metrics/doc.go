// Package metrics counts data stream activity on a dedicated Prometheus
// registry and serves it through promhttp.
//
// All recording methods are no-ops on a nil *Registry, so components can run
// without metrics in tests.
package metrics
