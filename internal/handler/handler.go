// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/view"
)

// newPage はリクエストコンテキストのセッションからレイアウト共通の値を組み立てる。
func newPage(r *http.Request, path string) view.Page {
	page := view.Page{
		Path:      path,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		page.SignedIn = true
		page.Email = session.Email
		page.IsAdmin = session.Role == model.RoleAdmin
	}
	return page
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeHTML はページ描画の共通処理。描画に失敗した場合は500を返す。
func writeHTML(w http.ResponseWriter, status int, render func(w http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := render(w); err != nil {
		slog.Error("failed to render page", slog.String("error", err.Error()))
	}
}
