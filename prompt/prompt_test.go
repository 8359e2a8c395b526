package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRegistry_AllExpertTemplatesPresent(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, name := range []string{
		NameClassify, NamePrice, NameTech, NameDefault, NameExtract,
		NamePriceCounter, NamePriceAccepted, NamePriceRejected, NamePriceExhausted,
	} {
		if !r.Has(name) {
			t.Errorf("missing template %q", name)
		}
	}
}

func TestRender_SubstitutesVariables(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	out, err := r.Render(NamePriceCounter, map[string]any{"Offer": "93.33"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "93.33") {
		t.Errorf("offer not substituted: %q", out)
	}

	out, err = r.Render(NamePrice, map[string]any{"Item": "键盘", "History": "", "BargainCount": 2})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "键盘") || !strings.Contains(out, "2") {
		t.Errorf("variables not substituted: %q", out)
	}
}

func TestRender_UnknownTemplateFails(t *testing.T) {
	r, _ := NewRegistry()
	if _, err := r.Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestLoadRegistry_OverridesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	custom := "给您 {{.Offer}} 元，拿走不谢。"
	if err := os.WriteFile(filepath.Join(dir, "price_counter.txt"), []byte(custom), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	r, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	out, err := r.Render(NamePriceCounter, map[string]any{"Offer": "88"})
	if err != nil {
		t.Fatalf("render override: %v", err)
	}
	if !strings.Contains(out, "拿走不谢") {
		t.Errorf("override not applied: %q", out)
	}

	// Names missing from the directory fall back to the defaults.
	if !r.Has(NamePriceAccepted) {
		t.Error("default template lost")
	}
}

func TestLoadRegistry_MissingDirFails(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLoadRegistry_BadTemplateFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "price.txt"), []byte("{{.Unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRegistry(dir); err == nil {
		t.Error("expected parse error")
	}
}
