// Package view はページのHTMLレンダリングを提供する。
// テンプレートは状態から出力を生成するだけで、データの取得は行わない。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/hitoshi/bookclub/internal/admin"
	"github.com/hitoshi/bookclub/internal/home"
	"github.com/hitoshi/bookclub/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// displayTimeLayout は画面に表示する開催日時の書式。
const displayTimeLayout = "Mon, Jan 2 2006 · 3:04 PM MST"

// HTMLSanitizer はMarkdownのレンダリング結果を無害化する。
type HTMLSanitizer interface {
	SanitizeHTML(rawHTML string) string
}

// Page はすべてのページに共通するレイアウトの状態。
type Page struct {
	SiteTitle string
	Title     string
	Path      string
	Nav       []NavLink
	SignedIn  bool
	Email     string
	IsAdmin   bool
	CSRFToken string
}

// HomePage はホーム画面の状態。
type HomePage struct {
	Page
	Dashboard *home.Dashboard
}

// AdminPage は管理画面の状態。
type AdminPage struct {
	Page
	Workspace *admin.Workspace
}

// NotFoundPage は404画面の状態。
type NotFoundPage struct {
	Page
}

// Renderer はページテンプレートを保持する。
type Renderer struct {
	siteTitle string
	location  *time.Location
	markdown  goldmark.Markdown
	sanitizer HTMLSanitizer
	pages     map[string]*template.Template
}

// NewRenderer はテンプレートを読み込んでRendererを生成する。
func NewRenderer(siteTitle string, location *time.Location, sanitizer HTMLSanitizer) (*Renderer, error) {
	if location == nil {
		location = time.UTC
	}
	r := &Renderer{
		siteTitle: siteTitle,
		location:  location,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
		),
		sanitizer: sanitizer,
		pages:     make(map[string]*template.Template),
	}

	for _, name := range []string{"home.html", "admin.html", "notfound.html"} {
		tpl, err := template.New("layout.html").
			Funcs(r.funcMap()).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = tpl
	}
	return r, nil
}

func (r *Renderer) funcMap() template.FuncMap {
	return template.FuncMap{
		"markdown":    r.renderMarkdown,
		"localTime":   r.formatTime,
		"localInput":  func(t time.Time) string { return admin.FormatLocalInput(t, r.location) },
		"isoTime":     func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"tabReadings": func() admin.Tab { return admin.TabReadings },
		"tabMeetings": func() admin.Tab { return admin.TabMeetings },
	}
}

// renderMarkdown は文献の説明文をHTMLに変換し、無害化して返す。
func (r *Renderer) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	out := buf.String()
	if r.sanitizer != nil {
		out = r.sanitizer.SanitizeHTML(out)
	}
	return template.HTML(out)
}

func (r *Renderer) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(r.location).Format(displayTimeLayout)
}

// layout はレイアウト共通の値を補完する。
func (r *Renderer) layout(p *Page) {
	p.SiteTitle = r.siteTitle
	p.Nav = Navigation(p.Path)
}

func (r *Renderer) execute(w io.Writer, name string, data any) error {
	tpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template: %s", name)
	}
	if err := tpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

// RenderHome はホーム画面を描画する。
func (r *Renderer) RenderHome(w io.Writer, page *HomePage) error {
	r.layout(&page.Page)
	if page.Title == "" {
		page.Title = "Home"
	}
	if page.Dashboard == nil {
		page.Dashboard = &home.Dashboard{Readings: map[int64]*model.Reading{}}
	}
	return r.execute(w, "home.html", page)
}

// RenderAdmin は管理画面を描画する。
func (r *Renderer) RenderAdmin(w io.Writer, page *AdminPage) error {
	r.layout(&page.Page)
	if page.Title == "" {
		page.Title = "Admin"
	}
	return r.execute(w, "admin.html", page)
}

// RenderNotFound は404画面を描画する。
func (r *Renderer) RenderNotFound(w io.Writer, page *NotFoundPage) error {
	r.layout(&page.Page)
	if page.Title == "" {
		page.Title = "Page not found"
	}
	return r.execute(w, "notfound.html", page)
}
