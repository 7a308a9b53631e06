// Package metrics defines the Prometheus collectors exported by coopctl.
//
// Components take an optional metrics struct and skip instrumentation when it
// is nil. The CLI creates one registry, registers the collectors it needs and
// serves them with Handler when --metrics-addr is set.
package metrics
