// Package render produces the standalone HTML report page.
//
// Scraped titles are untrusted input: every text field is stripped of
// markup with bluemonday before it reaches the template, on top of
// html/template's contextual escaping.
package render

import (
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
)

// TitleView is one rendered title line.
type TitleView struct {
	Title       string
	SourceName  string
	Ranks       string
	Tier        string
	TimeDisplay string
	Count       int
	URL         string
	IsNew       bool
}

// StatView is one keyword bucket section.
type StatView struct {
	Word       string
	Count      int
	Percentage float64
	Titles     []TitleView
}

// SectionView groups the new titles of one source.
type SectionView struct {
	SourceName string
	Titles     []TitleView
}

// Page is the full report view model.
type Page struct {
	Day           string
	Mode          string
	GeneratedAt   string
	TotalTitles   int
	TotalNewCount int
	FailedSources []string
	Stats         []StatView
	NewSections   []SectionView
}

var strict = bluemonday.StrictPolicy()

// HTML writes the report page. The input is sanitized in place.
func HTML(w io.Writer, p *Page) error {
	sanitize(p)
	if err := pageTmpl.Execute(w, p); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

func sanitize(p *Page) {
	for i := range p.FailedSources {
		p.FailedSources[i] = strict.Sanitize(p.FailedSources[i])
	}
	for i := range p.Stats {
		p.Stats[i].Word = strict.Sanitize(p.Stats[i].Word)
		sanitizeTitles(p.Stats[i].Titles)
	}
	for i := range p.NewSections {
		p.NewSections[i].SourceName = strict.Sanitize(p.NewSections[i].SourceName)
		sanitizeTitles(p.NewSections[i].Titles)
	}
}

func sanitizeTitles(titles []TitleView) {
	for i := range titles {
		titles[i].Title = strict.Sanitize(titles[i].Title)
		titles[i].SourceName = strict.Sanitize(titles[i].SourceName)
	}
}

var pageTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Trend report {{.Day}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 0 auto; max-width: 860px; padding: 1.5rem; color: #222; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.1rem; border-bottom: 1px solid #ddd; padding-bottom: .3rem; }
.meta { color: #777; font-size: .85rem; }
.bucket { margin: 1rem 0; }
.title { margin: .25rem 0; padding-left: .5rem; }
.tier-top { border-left: 3px solid #d33; }
.tier-high { border-left: 3px solid #e90; }
.tier-normal { border-left: 3px solid #ccc; }
.new { background: #fffbe6; }
.ranks, .time { color: #999; font-size: .8rem; margin-left: .4rem; }
.failed { color: #b00; font-size: .85rem; }
a { color: #0366d6; text-decoration: none; }
</style>
</head>
<body>
<h1>Trend report &middot; {{.Day}}</h1>
<p class="meta">mode {{.Mode}} &middot; {{.TotalTitles}} titles &middot; generated {{.GeneratedAt}}</p>
{{if .FailedSources}}<p class="failed">failed sources: {{range $i, $s := .FailedSources}}{{if $i}}, {{end}}{{$s}}{{end}}</p>{{end}}

{{range .Stats}}
<div class="bucket">
<h2>{{.Word}} <span class="meta">{{.Count}} ({{.Percentage}}%)</span></h2>
{{range .Titles}}
<div class="title tier-{{.Tier}}{{if .IsNew}} new{{end}}">
{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}
<span class="meta">[{{.SourceName}}]</span>
{{if .Ranks}}<span class="ranks">#{{.Ranks}}</span>{{end}}
{{if .TimeDisplay}}<span class="time">{{.TimeDisplay}}</span>{{end}}
</div>
{{end}}
</div>
{{end}}

{{if .NewSections}}
<h2>New this cycle ({{.TotalNewCount}})</h2>
{{range .NewSections}}
<div class="bucket">
<h2>{{.SourceName}}</h2>
{{range .Titles}}
<div class="title new">
{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}
{{if .Ranks}}<span class="ranks">#{{.Ranks}}</span>{{end}}
</div>
{{end}}
</div>
{{end}}
{{end}}
</body>
</html>
`))
