// Package capture provides the platform capabilities behind audio
// acquisition: a synthetic tone generator with failure injection, a
// WAV-file backed driver, and the realtime stream encoder both of them hand
// out.
package capture
