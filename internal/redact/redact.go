// Package redact scrubs credential-looking spans from document text before it
// is sent to a provider. Alignment always runs against the unredacted source,
// so a suggestion quoting a placeholder simply fails to place.
package redact

import "regexp"

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for secrets that leak into documents:
// pasted configuration, onboarding guides, incident writeups.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys after common key labels
	regexp.MustCompile(`(?i)(api[ _-]?key|apikey|api[ _-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// Generic secrets/tokens/passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs (three base64 segments separated by dots)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Private key blocks
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE KEY-----`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// Slack tokens
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	// OpenAI-style API keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllString(result, placeholder)
	}
	return result
}
