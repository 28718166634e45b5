// Package metrics defines the Prometheus collectors of the audio assistant.
package metrics
