// Package apperr defines the error taxonomy shared by capture, recording,
// transcription and history components. Every externally visible failure is an
// *Error carrying a Kind and a human-readable message.
package apperr
