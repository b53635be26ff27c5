package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		contains    []string
		notContains []string
	}{
		{
			name:     "plain text",
			input:    "security question: first pet",
			contains: []string{"<p>security question: first pet</p>"},
		},
		{
			name:     "emphasis and code",
			input:    "**PIN hint** use `the usual`",
			contains: []string{"<strong>PIN hint</strong>", "<code>the usual</code>"},
		},
		{
			name:     "hard line breaks",
			input:    "line one\nline two",
			contains: []string{"line one<br"},
		},
		{
			name:     "bare url is linked and opens outside the app",
			input:    "login at https://bank.example/login",
			contains: []string{`href="https://bank.example/login"`, `target="_blank"`, "noreferrer"},
		},
		{
			name:     "telegram deep link allowed",
			input:    "[support](tg://resolve?domain=banksupport)",
			contains: []string{`href="tg://resolve?domain=banksupport"`},
		},
		{
			name:        "javascript link dropped",
			input:       "[x](javascript:alert(1))",
			notContains: []string{"javascript:"},
		},
		{
			name:        "raw html omitted",
			input:       "before <script>alert(\"xss\")</script> <img src=x onerror=alert(1)> after",
			contains:    []string{"before", "after"},
			notContains: []string{"<script", "onerror", "<img"},
		},
		{
			name:     "strikethrough",
			input:    "~~old pin~~",
			contains: []string{"<del>old pin</del>"},
		},
		{
			name:     "task list",
			input:    "- [x] enabled 2FA\n- [ ] rotate password",
			contains: []string{"enabled 2FA", "rotate password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderMarkdown(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestRenderMarkdown_RecoveryCodes(t *testing.T) {
	got := RenderMarkdown("Recovery codes:\n\n1. `abcd-1234`\n2. `efgh-5678`")
	assert.Equal(t, 2, strings.Count(got, "<code>"))
	assert.Contains(t, got, "<ol>")
}
