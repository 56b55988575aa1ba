// Package metrics exposes driver activity as Prometheus collectors.
package metrics
