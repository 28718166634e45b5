// Package transcription implements the client for the transcription
// endpoint. It uploads a recording as multipart form data, retries
// retryable failures with linear backoff and classifies every failure.
package transcription
