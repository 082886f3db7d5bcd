// Package views renders the HTML pages of the blog.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/inkwell-blog/inkwell/types"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutFile    = "templates/layout.html"
	avatarURLRoot = "/static/profile_pics/"
)

var pages = []string{
	"home",
	"about",
	"register",
	"login",
	"account",
	"create_post",
	"post",
	"error",
}

// Page is the data every template receives. Form holds submitted or
// pre-populated field values and Action is the form target.
type Page struct {
	Title       string
	CurrentUser *types.User
	Form        map[string]string
	Errors      map[string]string
	Notice      string
	Legend      string
	Action      string
	Posts       []types.Post
	Post        *types.Post
	CanEdit     bool
	ImageURL    string
	Status      int
	Message     string
}

// Renderer executes the embedded page templates.
type Renderer struct {
	templates map[string]*template.Template
}

// New parses the layout together with each page template.
func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"avatarURL":  AvatarURL,
		"formatDate": formatDate,
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, layoutFile, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return &Renderer{templates: templates}, nil
}

// Render writes page name with status. Output is buffered so a failing
// template never leaves a half written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// AvatarURL is the public path of a stored profile picture.
func AvatarURL(imageFile string) string {
	if imageFile == "" {
		imageFile = types.DefaultImageFile
	}
	return avatarURLRoot + url.PathEscape(imageFile)
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
