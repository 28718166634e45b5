// Package audio acquires live capture sources, mixes them through per-source
// gain channels into a single output stream and meters every signal without
// altering it. Platform capture and encoding are reached only through the
// Capability contract, so the mixing logic never depends on a concrete device
// binding.
package audio
