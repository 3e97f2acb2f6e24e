// Package providers implements the Client interface over OpenAI-compatible
// chat endpoints.
//
// One implementation covers hosted OpenAI and any local server that speaks
// the same protocol (Ollama, LM Studio, vLLM) via a base URL override. Calls
// share a retry helper with exponential back-off for rate limits, 5xx
// responses, and transient network errors; auth failures never retry.
package providers
