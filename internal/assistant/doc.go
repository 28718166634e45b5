// Package assistant ties a recording session to the transcription client
// and the transcript history: record, stop, transcribe, remember.
package assistant
