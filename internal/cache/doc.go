// Package cache provides a file-based cache for LLM review responses.
//
// Entries are keyed by a SHA-256 hash of the model identifier, the review
// context, and the exact batch text. Each entry stores the raw response
// string plus its parsed form, so unchanged batches of an edited document are
// resolved without a provider call. Corrupted or unreadable entries are
// treated as misses and recomputed.
//
// GetOrCompute serializes concurrent computes of the same key; distinct keys
// proceed in parallel.
package cache
