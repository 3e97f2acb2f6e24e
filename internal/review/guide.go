package review

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Guide is an optional reviewer guide loaded from --guide. It steers the
// model without changing the suggestion schema.
type Guide struct {
	Focus    []string        `json:"focus,omitempty"`
	Ignore   []string        `json:"ignore,omitempty"`
	Required []RequiredCheck `json:"required,omitempty"`
}

// RequiredCheck is an instruction that should always be evaluated.
type RequiredCheck struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LoadGuide loads a guide file from disk. Returns nil Guide and nil error if
// path is empty.
func LoadGuide(path string) (*Guide, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading guide file: %w", err)
	}
	var g Guide
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing guide file: %w", err)
	}
	return &g, nil
}

// BuildGuidePromptSection returns additional prompt instructions derived from
// the guide.
func BuildGuidePromptSection(g *Guide) string {
	if g == nil {
		return ""
	}

	var b strings.Builder

	if len(g.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize suggestions in these areas.\n",
			strings.Join(g.Focus, ", "))
	}
	if len(g.Ignore) > 0 {
		fmt.Fprintf(&b, "\nDo not flag: %s.\n", strings.Join(g.Ignore, ", "))
	}
	if len(g.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range g.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}

	return b.String()
}
