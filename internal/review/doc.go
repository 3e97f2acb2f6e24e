// Package review contains the core types and engine for LLM document review.
//
// It defines the Suggestion, Skip, and Report types, partitions units into
// size-bounded batches, assembles prompts, parses and validates the JSON
// responses, and aligns every surviving suggestion to an exact character span
// of its source unit.
//
// Batches are reviewed in parallel with bounded concurrency; a failed batch
// contributes a warning, never an abort. Invalid model output gets one repair
// round trip before the batch is marked failed.
//
// Guide files (guide.go) let callers steer the review with focus areas,
// categories to ignore, and checks that must be considered for every unit.
package review
