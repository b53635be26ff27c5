package web

import (
	"bytes"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// notesRenderer turns credential notes into HTML safe to insert into the
// shell. Raw HTML in notes is never passed through; goldmark replaces it
// with a comment that the sanitizer then drops.
type notesRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

var notes = sync.OnceValue(func() *notesRenderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowURLSchemes("http", "https", "mailto", "tg")
	// Links must leave the Telegram webview instead of replacing the app.
	policy.RequireNoReferrerOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &notesRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Linkify,
				extension.Strikethrough,
				extension.TaskList,
				extension.Table,
			),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: policy,
	}
})

// RenderMarkdown converts credential notes to sanitized HTML. Line breaks are
// kept as typed. Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	r := notes()
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return r.policy.Sanitize(src)
	}
	return r.policy.Sanitize(buf.String())
}
