// Package report renders stored analyses for people: Markdown, HTML, JSON
// and a plain-text summary table.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/zombar/aletheia/internal/models"
)

const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatSummary  = "summary"
)

var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported formats in display order
func Formats() []string {
	return []string{FormatMarkdown, FormatHTML, FormatJSON, FormatSummary}
}

// Render renders a into format, returning the body and its content type
func Render(format string, a *models.Analysis) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md", "":
		b, err := execText(markdownTmpl, newView(a))
		return b, "text/markdown; charset=utf-8", err
	case FormatHTML:
		var buf bytes.Buffer
		if err := htmlTmpl.Execute(&buf, newView(a)); err != nil {
			return nil, "", fmt.Errorf("failed to render html report: %w", err)
		}
		return buf.Bytes(), "text/html; charset=utf-8", nil
	case FormatJSON:
		b, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to render json report: %w", err)
		}
		return b, "application/json", nil
	case FormatSummary:
		return Summary(a), "text/plain; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// RateScore bands a [0,1] score
func RateScore(v float64) string {
	switch {
	case v >= 0.8:
		return "excellent"
	case v >= 0.6:
		return "good"
	case v >= 0.4:
		return "fair"
	case v >= 0.2:
		return "poor"
	default:
		return "critical"
	}
}

// RateIndex bands a [0,10] index the same way as RateScore
func RateIndex(v float64) string {
	return RateScore(v / 10)
}

type scoreRow struct {
	Name   string
	Value  float64
	Rating string
}

type view struct {
	*models.Analysis
	Scores     []scoreRow
	Categories []scoreRow
	Indices    []scoreRow
}

func newView(a *models.Analysis) view {
	v := view{Analysis: a}
	v.Scores = rows(a.Result.Scores)
	v.Categories = rows(a.Result.Categories)

	idx := a.Result.Indices
	v.Indices = []scoreRow{
		{"Truth", idx.Truth, RateIndex(idx.Truth)},
		{"Integrity", idx.Integrity, RateIndex(idx.Integrity)},
		{"Risk", idx.Risk, a.Result.RiskLevel},
		{"Awakening", idx.Awakening, RateIndex(idx.Awakening)},
	}
	return v
}

func rows(m map[string]float64) []scoreRow {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]scoreRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, scoreRow{Name: k, Value: m[k], Rating: RateScore(m[k])})
	}
	return out
}

func execText(t *texttemplate.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render markdown report: %w", err)
	}
	return buf.Bytes(), nil
}

// Summary renders the status line and a scores table as plain text
func Summary(a *models.Analysis) []byte {
	var buf bytes.Buffer
	r := a.Result
	fmt.Fprintf(&buf, "Analysis %s\n", a.ID)
	fmt.Fprintf(&buf, "Status: %s  Risk: %s  Confidence: %.0f%%\n\n", r.Status, r.RiskLevel, r.Confidence*100)

	WriteScoreTable(&buf, r)

	if len(r.Warnings) > 0 {
		buf.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&buf, "  - %s\n", w)
		}
	}
	return buf.Bytes()
}

// WriteScoreTable writes the derived scores and indices as a table
func WriteScoreTable(w io.Writer, r models.Classification) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Measure", "Value", "Rating"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, row := range rows(r.Scores) {
		table.Append([]string{row.Name, fmt.Sprintf("%.2f", row.Value), row.Rating})
	}
	for _, row := range newView(&models.Analysis{Result: r}).Indices {
		table.Append([]string{row.Name + " index", fmt.Sprintf("%.1f", row.Value), row.Rating})
	}
	table.Render()
}

var funcs = map[string]any{
	"pct": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"f2":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f1":  func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"ts":  func(v time.Time) string { return v.UTC().Format(time.RFC3339) },
}

var markdownTmpl = texttemplate.Must(texttemplate.New("markdown").Funcs(funcs).Parse(
	`# Aletheia Analysis Report

- **ID:** {{.ID}}
- **Created:** {{ts .CreatedAt}}
{{- if .SubjectID}}
- **Subject:** {{.SubjectID}}
{{- end}}
- **Status:** {{.Result.Status}}
- **Risk level:** {{.Result.RiskLevel}}
- **Confidence:** {{pct .Result.Confidence}}

## Indices

| Index | Value | Rating |
|---|---|---|
{{- range .Indices}}
| {{.Name}} | {{f1 .Value}} | {{.Rating}} |
{{- end}}

## Scores

| Score | Value | Rating |
|---|---|---|
{{- range .Scores}}
| {{.Name}} | {{f2 .Value}} | {{.Rating}} |
{{- end}}

## Matches
{{if .Result.Matches}}
| Category | Pattern | Text |
|---|---|---|
{{- range .Result.Matches}}
| {{.Category}} | {{.PatternID}} | {{.Text}} |
{{- end}}
{{else}}
No patterns matched.
{{end}}
{{- if .Result.Warnings}}
## Warnings
{{range .Result.Warnings}}
- {{.}}
{{- end}}
{{end}}
{{- if .Result.Recommendations}}
## Recommendations
{{range .Result.Recommendations}}
- {{.}}
{{- end}}
{{end}}`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(htmltemplate.FuncMap(funcs)).Parse(
	`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Aletheia Analysis {{.ID}}</title></head>
<body>
<h1>Aletheia Analysis Report</h1>
<p>Status: <strong>{{.Result.Status}}</strong>, risk level {{.Result.RiskLevel}}, confidence {{pct .Result.Confidence}}</p>
<blockquote>{{.Text}}</blockquote>
<h2>Indices</h2>
<table>
<tr><th>Index</th><th>Value</th><th>Rating</th></tr>
{{- range .Indices}}
<tr><td>{{.Name}}</td><td>{{f1 .Value}}</td><td>{{.Rating}}</td></tr>
{{- end}}
</table>
<h2>Scores</h2>
<table>
<tr><th>Score</th><th>Value</th><th>Rating</th></tr>
{{- range .Scores}}
<tr><td>{{.Name}}</td><td>{{f2 .Value}}</td><td>{{.Rating}}</td></tr>
{{- end}}
</table>
<h2>Matches</h2>
<ul>
{{- range .Result.Matches}}
<li>{{.Category}} {{.PatternID}}: {{.Text}}</li>
{{- end}}
</ul>
{{- if .Result.Warnings}}
<h2>Warnings</h2>
<ul>{{range .Result.Warnings}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
{{- if .Result.Recommendations}}
<h2>Recommendations</h2>
<ul>{{range .Result.Recommendations}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
</body>
</html>
`))
