package dashboard

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/alexis-pagnon/green-optimizer/pkg/recommend"
)

var funcs = template.FuncMap{
	"bytes": recommend.FormatBytes,
	"score": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"lower": strings.ToLower,
	"deref": func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	},
	"derefBytes": func(p *int64) int64 {
		if p == nil {
			return 0
		}
		return *p
	},
}

const layoutTmpl = `{{define "head"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.}} · green-optimizer</title>
<style>
body{font-family:system-ui,sans-serif;max-width:900px;margin:2rem auto;padding:0 1rem;color:#222;background:#fafafa}
h1{font-size:1.4rem;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
table{border-collapse:collapse;width:100%;margin:1rem 0}
td,th{text-align:left;padding:.3rem .5rem;border-bottom:1px solid #e0e0e0;font-size:.9rem}
.card{background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:1rem;margin-bottom:1rem}
.grade{font-size:2.5rem;font-weight:bold}
.grade-a,.grade-b{color:#2e7d32}.grade-c,.grade-d{color:#f9a825}.grade-e,.grade-f,.grade-g{color:#c62828}
.error{border-color:#c62828;background:#fff5f5}
.muted{color:#666;font-size:.85rem}
.sev-high{color:#c62828}.sev-medium{color:#f9a825}.sev-low{color:#666}
form.inline{display:inline}
input[type=url]{width:60%;padding:.4rem}
button{padding:.4rem .8rem}
</style></head><body>{{end}}
{{define "foot"}}</body></html>{{end}}`

var indexTmpl = template.Must(template.New("index").Funcs(funcs).Parse(layoutTmpl + `
{{template "head" "Analyze"}}
<h1>Page footprint analysis</h1>
<form method="post" action="/analyze" class="card">
<input type="url" name="url" placeholder="https://example.com" required>
<button type="submit">Analyze</button>
<p class="muted">Model {{.ModelVersion}}</p>
</form>
<h2>Recent analyses</h2>
{{- if not .History}}
<p class="muted">No analyses yet.</p>
{{- else}}
<table><tr><th>URL</th><th>Score</th><th>Grade</th><th>Model</th><th>Stored</th></tr>
{{- range .History}}
<tr><td><a href="/result?url={{.URL}}">{{.URL}}</a></td><td>{{score .OverallScore}}</td>
<td class="grade-{{lower .Grade}}">{{.Grade}}</td><td>{{.ModelVersion}}</td>
<td class="muted">{{.StoredAt.Format "2006-01-02 15:04"}}{{if .Invalidated}} (invalidated){{end}}</td></tr>
{{- end}}
</table>
{{- end}}
{{template "foot"}}`))

var resultTmpl = template.Must(template.New("result").Funcs(funcs).Parse(layoutTmpl + `
{{template "head" .Snapshot.URL}}
<p><a href="/">&larr; back</a></p>
<h1>{{.Snapshot.URL}}</h1>
{{- with .Snapshot.Title}}<p class="muted">{{.}}</p>{{end}}
<div class="card">
<span class="grade grade-{{lower .Score.Grade}}">{{.Score.Grade}}</span>
<strong>{{score .Score.OverallScore}}</strong> / 100
<span class="muted">model {{.Score.ModelVersion}} · {{score .Score.GHGEmissionsGrams}} gCO2e · {{score .Score.WaterCentiliters}} cl water</span>
{{- if eq (print .Score.Confidence) "low"}}
<p class="sev-high">Low confidence: {{.Score.ConfidenceReason}}</p>
{{- end}}
<table>
{{- range $cat, $v := .Score.CategoryScores}}
<tr><td>{{$cat}}</td><td>{{score $v}}</td></tr>
{{- end}}
</table>
<p class="muted">{{bytes .Snapshot.TotalBytes}} in {{.Snapshot.RequestCount}} requests ({{.Snapshot.FailedRequestCount}} failed, {{.Snapshot.ThirdPartyRequestCount}} third-party) · {{.Snapshot.DOMNodeCount}} DOM nodes · load {{.Snapshot.LoadTimeMs}} ms · hosting {{.Snapshot.GreenHost}}</p>
<form method="post" action="/invalidate" class="inline">
<input type="hidden" name="url" value="{{.Request.URL}}"><button type="submit">Analyze again</button>
</form>
<span class="muted">generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</span>
</div>
<h2>Recommendations</h2>
{{- if not .Recommendations}}
<p class="muted">Nothing to improve.</p>
{{- end}}
{{- range .Recommendations}}
<div class="card"><strong class="sev-{{.Severity}}">[{{.Severity}}]</strong> {{.Title}}
{{- if .EstimatedByteSavings}} <span class="muted">saves {{bytes (derefBytes .EstimatedByteSavings)}}</span>{{end}}
{{- if .EstimatedScoreDelta}} <span class="muted">+{{score (deref .EstimatedScoreDelta)}} pts</span>{{end}}
{{- with .Detail}}<p class="muted">{{.}}</p>{{end}}
</div>
{{- end}}
<h2>Transfer by type</h2>
<table><tr><th>Type</th><th>Bytes</th><th>Requests</th></tr>
{{- range $t, $b := .Snapshot.BytesByType}}
<tr><td>{{$t}}</td><td>{{bytes $b}}</td><td>{{index $.Snapshot.RequestCountByType $t}}</td></tr>
{{- end}}
</table>
{{- if .Snapshot.UnusedCode}}
<h2>Mostly unused code</h2><ul>{{range .Snapshot.UnusedCode}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
{{- if .Snapshot.UnusedImages}}
<h2>Unused images</h2><ul>{{range .Snapshot.UnusedImages}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
{{template "foot"}}`))

var errorTmpl = template.Must(template.New("error").Funcs(funcs).Parse(layoutTmpl + `
{{template "head" "Analysis failed"}}
<p><a href="/">&larr; back</a></p>
<h1>Analysis failed</h1>
<div class="card error">
{{- with .URL}}<p><strong>{{.}}</strong></p>{{end}}
<p>{{.Message}}</p>
<p class="muted">{{.Kind}}</p>
{{- if .URL}}
<form method="post" action="/analyze"><input type="hidden" name="url" value="{{.URL}}"><button type="submit">Retry</button></form>
{{- end}}
</div>
{{template "foot"}}`))
