package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestTemplateRenderer(t *testing.T) {
	r, err := NewTemplateRenderer()
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}

	for _, page := range []string{"donation_result.html", "payment_settings.html", "error.html", "login.html"} {
		if _, ok := r.templates[page]; !ok {
			t.Errorf("page %s not loaded", page)
		}
	}

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("userEmail", "admin@example.org")

	var buf bytes.Buffer
	err = r.Render(&buf, "error.html", map[string]interface{}{
		"Title":        "Not Found",
		"ErrorTitle":   "Not Found",
		"ErrorMessage": "<script>alert(1)</script>",
	}, c)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Error("error message not escaped")
	}
	if !strings.Contains(out, "Not Found") {
		t.Errorf("output = %s", out)
	}

	if err := r.Render(&buf, "missing.html", nil, c); err == nil {
		t.Error("rendering an unknown page should fail")
	}
}
