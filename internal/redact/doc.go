// Package redact removes secrets from document text before it is sent to any
// LLM provider.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS credentials, bearer tokens, database connection
// strings, and provider-specific tokens. Redaction applies only to prompt
// text; alignment and anchoring always run against the original document.
package redact
