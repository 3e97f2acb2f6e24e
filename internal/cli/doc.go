// Package cli wires together the Cobra command tree for the redline binary.
//
// It defines the root command and all subcommands (review, config, models,
// cache, version), binds flags, reads configuration, invokes the review
// engine, anchors the resulting comments into the document, and returns
// deterministic exit codes for scripting.
package cli
