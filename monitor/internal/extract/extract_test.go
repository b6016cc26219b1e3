package extract

import (
	"strings"
	"testing"
)

func TestMarkdownBasic(t *testing.T) {
	e := New()
	got := e.Markdown("<h1>Release Notes</h1><p>Version <strong>2.0</strong> is out.</p>", "https://example.com")
	if !strings.Contains(got, "# Release Notes") {
		t.Errorf("heading not converted: %q", got)
	}
	if !strings.Contains(got, "**2.0**") {
		t.Errorf("bold not converted: %q", got)
	}
}

func TestMarkdownStableAcrossMarkupNoise(t *testing.T) {
	// WHAT: Attribute order and insignificant whitespace do not affect the
	// normalized output.
	// WHY: Text-mode pages should only record real content changes.
	e := New()
	a := e.Markdown(`<p class="x" id="y">hello world</p>`, "https://example.com")
	b := e.Markdown("<p id=\"y\"  class=\"x\" >hello   world</p>", "https://example.com")
	if a != b {
		t.Errorf("normalization unstable: %q vs %q", a, b)
	}
}

func TestMarkdownEmptyInput(t *testing.T) {
	e := New()
	if got := e.Markdown("", "https://example.com"); got != "" {
		t.Errorf("empty input: %q", got)
	}
}

func TestTitle(t *testing.T) {
	got := Title("<html><head><title> My Page </title></head><body></body></html>")
	if got != "My Page" {
		t.Errorf("title: %q", got)
	}
	if got := Title("<html><body><p>no title</p></body></html>"); got != "" {
		t.Errorf("expected empty title, got %q", got)
	}
}
