package output

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html.tmpl").
		Funcs(template.FuncMap{
			"join":  strings.Join,
			"lower": strings.ToLower,
		}).
		ParseFS(templateFS, "templates/report.html.tmpl"),
)

// WriteHTML renders rep as a standalone HTML page. All values are escaped.
func WriteHTML(w io.Writer, rep *models.Report) error {
	return reportTemplate.Execute(w, rep)
}
