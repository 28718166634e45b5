// Package recording implements the recording session state machine:
// acquisition, mixing, encoding and finalization of one artifact at a time.
package recording
