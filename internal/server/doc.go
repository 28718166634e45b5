// Package server implements the HTTP API of the audio assistant: recording
// control, live levels and gains, transcript history, settings and
// monitoring endpoints.
package server
