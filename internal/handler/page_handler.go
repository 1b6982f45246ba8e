package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/bookclub/internal/home"
	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/view"
)

// HomeLoader はホーム画面のデータ取得インターフェース。
type HomeLoader interface {
	Load(ctx context.Context, clubID string) *home.Dashboard
}

// PageRenderer は画面描画のインターフェース。
type PageRenderer interface {
	RenderHome(w io.Writer, page *view.HomePage) error
	RenderAdmin(w io.Writer, page *view.AdminPage) error
	RenderNotFound(w io.Writer, page *view.NotFoundPage) error
}

// PageHandler はホーム画面と404画面のHTTPハンドラー。
type PageHandler struct {
	home     HomeLoader
	renderer PageRenderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(home HomeLoader, renderer PageRenderer) *PageHandler {
	return &PageHandler{home: home, renderer: renderer}
}

// Home はホーム画面を描画する。
// GET /
// 未サインインまたはクラブ未所属の場合は空のダッシュボードを描画する。
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	clubID := middleware.ClubIDFromContext(r.Context())
	page := &view.HomePage{
		Page:      newPage(r, "/"),
		Dashboard: h.home.Load(r.Context(), clubID),
	}
	writeHTML(w, http.StatusOK, func(w http.ResponseWriter) error {
		return h.renderer.RenderHome(w, page)
	})
}

// NotFound は404画面を描画する。
// GET /404 およびルート未定義のパス。/404 自体はナビゲーションの遷移先のため200で返す。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	status := http.StatusNotFound
	if r.URL.Path == "/404" {
		status = http.StatusOK
	}
	page := &view.NotFoundPage{Page: newPage(r, r.URL.Path)}
	writeHTML(w, status, func(w http.ResponseWriter) error {
		return h.renderer.RenderNotFound(w, page)
	})
}
