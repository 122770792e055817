package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var boardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	boardTemplate = template.Must(template.New("board").Funcs(funcMap).Parse(boardTemplateHTML))
}

// TemplateData holds data for board report rendering
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Concerns    []TemplateConcern
}

// TemplateConcern holds one concern row for the report
type TemplateConcern struct {
	Title       string
	Description string
	AuthorName  string
	Apartment   string
	Upvotes     int
	CreatedAt   time.Time
	IsDeleted   bool
}

// RenderBoardHTML renders the board report template with provided data
func RenderBoardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const boardTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .concern { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
    .concern.deleted { border-left-color: #b00; opacity: 0.7; }
    .concern h2 { margin: 0 0 0.25rem; font-size: 1.1em; }
    .concern .byline { color: #666; font-size: 0.85em; }
    .votes { float: right; font-weight: bold; }
    .removed-tag { color: #b00; font-size: 0.8em; text-transform: uppercase; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04 MST"}} | {{len .Concerns}} concerns</div>
  {{range .Concerns}}
  <div class="concern{{if .IsDeleted}} deleted{{end}}">
    <span class="votes">{{.Upvotes}} votes</span>
    <h2>{{.Title}} {{if .IsDeleted}}<span class="removed-tag">removed</span>{{end}}</h2>
    <div class="byline">{{.AuthorName}} (Apt {{.Apartment}}) | {{formatDate .CreatedAt "Jan 2, 2006"}}</div>
    <p>{{.Description}}</p>
  </div>
  {{else}}
  <p>No concerns on the board.</p>
  {{end}}
</body>
</html>`
