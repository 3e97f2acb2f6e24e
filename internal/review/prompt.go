package review

import (
	"fmt"
	"strings"

	"github.com/dshills/redline/internal/docx"
)

const systemPrompt = `You are a meticulous copy editor. Your job is to review document text for obvious grammatical errors, spelling mistakes, and awkward style, and produce structured suggestions in JSON format.

Rules:
1. Only flag genuine problems. Do not rewrite text that is already correct.
2. Quote the exact problematic text from the unit, as short as possible while unambiguous.
3. Every suggestion must include a corrected replacement and a one-sentence explanation.
4. Reference the unit number each suggestion belongs to.
5. Categorize each suggestion as one of: grammar, spelling, style, other.
6. Never comment on formatting, layout, or subject matter.

You MUST respond with ONLY a JSON array of suggestions. No markdown, no explanation, no preamble. Just the JSON array.

Each suggestion must have this exact structure:
{
  "unit": 1,
  "quote": "text copied from the unit",
  "replacement": "corrected text",
  "explanation": "why the change is needed",
  "category": "grammar|spelling|style|other"
}

If there are no issues, respond with an empty array: []`

// SystemPrompt returns the system prompt for the model.
func SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt frames a batch's units for review. Each unit is numbered
// with its stable ID so suggestions can be routed back. The optional context
// and guide sections precede the text.
func BuildUserPrompt(units []docx.Unit, context string, guide *Guide) string {
	var b strings.Builder

	b.WriteString("Review the following numbered text units.\n")

	if context != "" {
		fmt.Fprintf(&b, "\nContext for this review:\n%s\n", context)
	}
	if section := BuildGuidePromptSection(guide); section != "" {
		b.WriteString(section)
	}

	b.WriteString("\n--- BEGIN TEXT ---\n")
	for _, u := range units {
		fmt.Fprintf(&b, "[unit %d]\n%s\n\n", u.ID, u.Text)
	}
	b.WriteString("--- END TEXT ---\n")

	return b.String()
}
