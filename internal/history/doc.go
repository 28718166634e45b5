// Package history keeps a bounded, newest-first list of recent transcripts
// in an ephemeral key-value store that lives only as long as the session.
package history
