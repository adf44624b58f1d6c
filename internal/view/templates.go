package view

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// Viewer is the current user shown in the sidebar.
type Viewer struct {
	Name    string
	Email   string
	IsAdmin bool
}

// NavItem is a sidebar entry.
type NavItem struct {
	Title string
	Href  string
	Icon  string
}

// Navigation lists the sidebar entries in display order.
var Navigation = []NavItem{
	{Title: "User Management", Href: "/admin/users", Icon: "users"},
	{Title: "Add User", Href: "/admin/users/new", Icon: "user-plus"},
	{Title: "Change Password", Href: "/admin/password", Icon: "lock"},
	{Title: "Settings", Href: "/admin/settings", Icon: "settings"},
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	CurrentUser *Viewer
	Busy        bool
	Data        any
}

// Nav exposes the sidebar entries to templates.
func (TemplateData) Nav() []NavItem {
	return Navigation
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"initials": initials,
		"isActive": isActive,
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData. Callers set headers.
func (e *Engine) Render(w io.Writer, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

func initials(name string) string {
	var b strings.Builder
	n := 0
	for _, part := range strings.Fields(name) {
		for _, r := range part {
			b.WriteRune(r)
			n++
			break
		}
		if n == 2 {
			break
		}
	}
	return strings.ToUpper(b.String())
}

// isActive matches a nav entry against the request path. The list entry
// only matches exactly so "Add User" is not shadowed by it.
func isActive(current, href string) bool {
	if current == href {
		return true
	}
	if href == "/admin/users" {
		return strings.HasPrefix(current, "/admin/users/") && current != "/admin/users/new"
	}
	return false
}
