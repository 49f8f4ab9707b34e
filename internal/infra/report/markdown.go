package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	apphistory "github.com/bryanwahyu/codesight/internal/application/history"
	"github.com/bryanwahyu/codesight/internal/domain/history"
)

var mdTmpl = texttemplate.Must(texttemplate.New("report").Parse(`# {{.Title}}

| | |
|---|---|
| Language | {{.Language}} |
| Created | {{.Created}} |
| Time complexity | {{.Item.TimeComplexity}} |
| Space complexity | {{.Item.SpaceComplexity}} |

## Code

{{.Fence}}{{.Item.Language}}
{{.Item.Code}}
{{.Fence}}

## Explanation

{{.Item.Explanation}}
{{if .Item.ImprovementSuggestions}}
## Suggestions

{{.Item.ImprovementSuggestions}}
{{end}}{{if .Item.UserNotes}}
## Notes

{{.Item.UserNotes}}
{{end}}`))

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:860px;margin:2rem auto;padding:0 1rem;line-height:1.5}
pre{background:#f4f4f5;padding:1rem;overflow-x:auto}
table{border-collapse:collapse}td,th{border:1px solid #ddd;padding:.25rem .5rem}
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Renderer builds a Markdown report and its HTML rendering.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	// raw HTML in model output is escaped (goldmark default)
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (r *Renderer) Render(it *history.Item) (apphistory.Report, error) {
	title := it.Title
	if strings.TrimSpace(title) == "" {
		title = "Analysis for " + history.LanguageLabel(it.Language)
	}

	var md bytes.Buffer
	err := mdTmpl.Execute(&md, map[string]any{
		"Title":    title,
		"Language": history.LanguageLabel(it.Language),
		"Created":  it.CreatedAt.UTC().Format(time.RFC1123),
		"Item":     it,
		"Fence":    fenceFor(it.Code),
	})
	if err != nil {
		return apphistory.Report{}, fmt.Errorf("render markdown: %w", err)
	}

	body, err := r.HTML(md.Bytes())
	if err != nil {
		return apphistory.Report{}, err
	}
	var page bytes.Buffer
	if err := pageTmpl.Execute(&page, map[string]any{"Title": title, "Body": body}); err != nil {
		return apphistory.Report{}, fmt.Errorf("render html: %w", err)
	}
	return apphistory.Report{Markdown: md.Bytes(), HTML: page.Bytes()}, nil
}

// HTML converts Markdown to an HTML fragment.
func (r *Renderer) HTML(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// fenceFor returns a backtick fence longer than any run inside code.
func fenceFor(code string) string {
	longest, run := 0, 0
	for _, c := range code {
		if c == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}
