package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
)

//go:embed templates
var templateFS embed.FS

// TemplateRenderer is a html/template renderer for Echo.
// Every page gets its own clone of the base layout so pages can define the same blocks.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer parses the embedded layouts and pages
func NewTemplateRenderer() (*TemplateRenderer, error) {
	templates := make(map[string]*template.Template)

	base, err := template.ParseFS(templateFS, "templates/layouts/*.html")
	if err != nil {
		return nil, err
	}

	pages, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		pageTemplate, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := pageTemplate.ParseFS(templateFS, page); err != nil {
			return nil, err
		}
		templates[path.Base(page)] = pageTemplate
	}

	return &TemplateRenderer{templates: templates}, nil
}

// Render renders a page inside the base layout
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.templates[name]
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Template not found: "+name)
	}

	if dataMap, ok := data.(map[string]interface{}); ok {
		dataMap["UserEmail"] = c.Get("userEmail")
		dataMap["UserUID"] = c.Get("userUID")
	} else if data == nil {
		data = map[string]interface{}{
			"UserEmail": c.Get("userEmail"),
			"UserUID":   c.Get("userUID"),
		}
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
