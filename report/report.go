// Package report renders the run summary as a standalone HTML page.
package report

import (
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/pgcompare/pgcompare/compare"
)

// Data is everything the template consumes.
type Data struct {
	GeneratedAt time.Time
	Project     int
	Action      string
	Tables      []compare.TableResult
}

// TotalOutOfSync sums the out-of-sync rows across all tables.
func (d Data) TotalOutOfSync() int64 {
	var n int64
	for _, t := range d.Tables {
		n += t.Counts.OutOfSync()
	}
	return n
}

// TotalRows sums the compared rows across all tables.
func (d Data) TotalRows() int64 {
	var n int64
	for _, t := range d.Tables {
		n += t.Counts.Total()
	}
	return n
}

var funcs = template.FuncMap{
	"elapsed": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"stamp": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05 MST")
	},
}

var page = template.Must(template.New("report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>pgcompare report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #999; padding: 4px 10px; text-align: right; }
th { background: #eee; }
td.name, th.name { text-align: left; }
.bad { color: #a00; font-weight: bold; }
.ok { color: #070; }
</style>
</head>
<body>
<h1>pgcompare report</h1>

<h2>Job Summary</h2>
<table>
<tr><th class="name">Generated</th><td>{{stamp .GeneratedAt}}</td></tr>
<tr><th class="name">Project</th><td>{{.Project}}</td></tr>
<tr><th class="name">Action</th><td>{{.Action}}</td></tr>
<tr><th class="name">Tables</th><td>{{len .Tables}}</td></tr>
<tr><th class="name">Rows compared</th><td>{{.TotalRows}}</td></tr>
<tr><th class="name">Rows out of sync</th>
<td{{if gt .TotalOutOfSync 0}} class="bad"{{else}} class="ok"{{end}}>{{.TotalOutOfSync}}</td></tr>
</table>

<h2>Tables</h2>
<table>
<tr>
<th class="name">Table</th><th>Status</th><th>Equal</th><th>Not equal</th>
<th>Missing source</th><th>Missing target</th><th>Elapsed</th><th>Rows/s</th>
</tr>
{{range .Tables}}
<tr>
<td class="name">{{.Alias}}</td>
<td class="name">{{.Status}}</td>
<td>{{.Counts.Equal}}</td>
<td{{if gt .Counts.NotEqual 0}} class="bad"{{end}}>{{.Counts.NotEqual}}</td>
<td{{if gt .Counts.MissingSource 0}} class="bad"{{end}}>{{.Counts.MissingSource}}</td>
<td{{if gt .Counts.MissingTarget 0}} class="bad"{{end}}>{{.Counts.MissingTarget}}</td>
<td>{{elapsed .Elapsed}}</td>
<td>{{.RowsPerSecond}}</td>
</tr>
{{end}}
</table>

{{range .Tables}}{{if .Rechecks}}
<h2>Recheck: {{.Alias}}</h2>
<table>
<tr><th class="name">Primary key</th><th class="name">Prior status</th><th class="name">Outcome</th></tr>
{{range .Rechecks}}
<tr>
<td class="name">{{.Finding.PK}}</td>
<td class="name">{{.Finding.Status}}</td>
<td class="name{{if eq .Outcome "resolved"}} ok{{else}} bad{{end}}">{{.Outcome}}</td>
</tr>
{{end}}
</table>
{{end}}{{end}}

</body>
</html>
`))

// Write renders the report to path.
func Write(path string, data Data) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()

	if err := page.Execute(f, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
