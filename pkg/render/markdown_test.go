package render

import (
	"strings"
	"testing"
)

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		contains    []string
		notContains []string
	}{
		{
			name:     "emphasis",
			source:   "some **bold** text",
			contains: []string{"<strong>bold</strong>"},
		},
		{
			name:     "gfm strikethrough",
			source:   "~~gone~~",
			contains: []string{"<del>gone</del>"},
		},
		{
			name:        "script removed",
			source:      "hi <script>alert(1)</script>",
			notContains: []string{"<script>", "</script>"},
		},
		{
			name:        "javascript link removed",
			source:      "[x](javascript:alert(1))",
			notContains: []string{"javascript:"},
		},
		{
			name:     "external link opens in new tab",
			source:   "[site](https://example.com)",
			contains: []string{`target="_blank"`, "noreferrer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Markdown(tt.source)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("want %q in output, got %q", s, got)
				}
			}
			for _, s := range tt.notContains {
				if strings.Contains(got, s) {
					t.Errorf("want no %q in output, got %q", s, got)
				}
			}
		})
	}
}
