package review

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadGuide_EmptyPath(t *testing.T) {
	g, err := LoadGuide("")
	if err != nil {
		t.Fatalf("LoadGuide: %v", err)
	}
	if g != nil {
		t.Errorf("g = %+v, want nil", g)
	}
}

func TestLoadGuide_MissingFile(t *testing.T) {
	if _, err := LoadGuide(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing guide file")
	}
}

func TestLoadGuide_ParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.json")
	content := `{
		"focus": ["passive voice", "subject-verb agreement"],
		"ignore": ["Oxford comma"],
		"required": [{"id": "R1", "text": "Check every date format"}]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	g, err := LoadGuide(path)
	if err != nil {
		t.Fatalf("LoadGuide: %v", err)
	}
	if len(g.Focus) != 2 || g.Focus[0] != "passive voice" {
		t.Errorf("Focus = %v", g.Focus)
	}
	if len(g.Ignore) != 1 || len(g.Required) != 1 {
		t.Errorf("Ignore = %v, Required = %v", g.Ignore, g.Required)
	}
}

func TestLoadGuide_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadGuide(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestBuildGuidePromptSection(t *testing.T) {
	if got := BuildGuidePromptSection(nil); got != "" {
		t.Errorf("nil guide produced %q", got)
	}

	g := &Guide{
		Focus:    []string{"clarity"},
		Ignore:   []string{"jargon"},
		Required: []RequiredCheck{{ID: "R1", Text: "check headings"}},
	}
	section := BuildGuidePromptSection(g)
	for _, want := range []string{"clarity", "Do not flag: jargon", "[R1] check headings"} {
		if !strings.Contains(section, want) {
			t.Errorf("section missing %q:\n%s", want, section)
		}
	}
}
