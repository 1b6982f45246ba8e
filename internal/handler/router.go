package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bookclub/internal/metrics"
	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/tenant"
)

// RouterMetrics はルーターが記録するメトリクスのインターフェース。
type RouterMetrics interface {
	middleware.StatusRecorder
	SignInRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Authenticator middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	CSRFConfig    middleware.CSRFConfig

	// 画面
	Renderer   PageRenderer
	Home       HomeLoader
	Workspaces WorkspaceFactory

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	AuthEvents  tenant.Source

	// 運用
	HealthChecker HealthChecker
	Metrics       RouterMetrics
	Gatherer      prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → RealIP → Logging → Session → RateLimit(General) → CSRF
//
// /health と /metrics はセッションとCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(chimiddleware.RealIP)

	pages := NewPageHandler(deps.Home, deps.Renderer)
	adminHandler := NewAdminHandler(deps.Workspaces, deps.Renderer)
	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, deps.AuthConfig)
	calendarHandler := NewCalendarHandler(deps.Home)
	eventsHandler := NewEventsHandler(deps.AuthEvents)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 画面とAPI ---
	// ミドルウェアスタック: Logging → Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
		r.Use(middleware.NewSessionMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/", pages.Home)
		r.Get("/404", pages.NotFound)
		r.NotFound(pages.NotFound)

		// 認証（サインインはIP単位のレート制限を追加）
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/signin", authHandler.SignIn)
			r.Post("/signout", authHandler.SignOut)
			r.With(middleware.NewRequireSessionMiddleware()).Get("/me", authHandler.Me)
		})

		// サインイン必須のAPI
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireSessionMiddleware())
			r.Get("/api/calendar", calendarHandler.Events)
			r.Get("/events", eventsHandler.Stream)
		})

		// 管理画面（adminロール必須）
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireRoleMiddleware(model.RoleAdmin))
			r.Get("/", adminHandler.Show)

			r.Post("/readings", adminHandler.CreateReading)
			r.Post("/readings/{id}", adminHandler.UpdateReading)
			r.Post("/readings/{id}/delete", adminHandler.DeleteReading)

			r.Post("/meetings", adminHandler.CreateMeeting)
			r.Post("/meetings/{id}", adminHandler.UpdateMeeting)
			r.Post("/meetings/{id}/delete", adminHandler.DeleteMeeting)
		})
	})

	return r
}
