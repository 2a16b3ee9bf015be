package tui

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdCodeBlockRe  = regexp.MustCompile(`(?s)<pre><code(?: class="language-([a-zA-Z0-9]+)")?>(.*?)</code></pre>`)
	mdInlineCodeRe = regexp.MustCompile(`<code>([^<]+)</code>`)
	mdHeadingRe    = regexp.MustCompile(`<h[1-6][^>]*>(.*?)</h[1-6]>`)
	mdStrongRe     = regexp.MustCompile(`<strong>(.*?)</strong>`)
	mdEmRe         = regexp.MustCompile(`<em>(.*?)</em>`)
	mdLinkRe       = regexp.MustCompile(`<a href="([^"]*)">(.*?)</a>`)
	mdListItemRe   = regexp.MustCompile(`<li>(.*?)</li>`)
	mdTagRe        = regexp.MustCompile(`<[^>]+>`)
	mdBlankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// AnswerRenderer turns the backend's markdown answers into styled
// terminal text with syntax-highlighted code fences.
type AnswerRenderer struct {
	md        goldmark.Markdown
	formatter chroma.Formatter
	style     *chroma.Style
	theme     Theme
}

func NewAnswerRenderer(theme Theme) *AnswerRenderer {
	return &AnswerRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		formatter: formatters.Get("terminal256"),
		style:     styles.Get("friendly"),
		theme:     theme,
	}
}

// Render converts markdown to terminal output wrapped to width. On any
// conversion failure the raw content comes back untouched.
func (r *AnswerRenderer) Render(content string, width int) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return r.formatHTML(buf.String(), width)
}

func (r *AnswerRenderer) formatHTML(htmlContent string, width int) string {
	out := htmlContent

	out = mdCodeBlockRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := mdCodeBlockRe.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		return "\n" + r.highlight(decodeEntities(parts[2]), parts[1]) + "\n"
	})

	out = mdInlineCodeRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := mdInlineCodeRe.FindStringSubmatch(m)
		if len(parts) < 2 {
			return m
		}
		return lipgloss.NewStyle().Foreground(r.theme.Accent).Render(decodeEntities(parts[1]))
	})

	out = mdHeadingRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := mdHeadingRe.FindStringSubmatch(m)
		if len(parts) < 2 {
			return m
		}
		return lipgloss.NewStyle().Bold(true).Foreground(r.theme.Accent).Render(parts[1]) + "\n"
	})

	out = mdStrongRe.ReplaceAllString(out, lipgloss.NewStyle().Bold(true).Render("$1"))
	out = mdEmRe.ReplaceAllString(out, lipgloss.NewStyle().Italic(true).Render("$1"))
	out = mdLinkRe.ReplaceAllString(out, "$2 ($1)")
	out = mdListItemRe.ReplaceAllString(out, "  • $1\n")

	out = strings.ReplaceAll(out, "<br>", "\n")
	out = strings.ReplaceAll(out, "<br/>", "\n")
	out = strings.ReplaceAll(out, "</p>", "\n")
	out = mdTagRe.ReplaceAllString(out, "")
	out = decodeEntities(out)
	out = mdBlankRunRe.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	if width > 0 {
		out = lipgloss.NewStyle().Width(width).Render(out)
	}
	return out
}

func (r *AnswerRenderer) highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

func decodeEntities(s string) string {
	replacements := []struct{ from, to string }{
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&amp;", "&"},
		{"&quot;", `"`},
		{"&#39;", "'"},
	}
	for _, rep := range replacements {
		s = strings.ReplaceAll(s, rep.from, rep.to)
	}
	return s
}
