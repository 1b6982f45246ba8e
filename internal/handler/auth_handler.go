package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bookclub/internal/metrics"
	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
}

// SignInRecorder はサインイン結果を集計するメトリクスのインターフェース。
type SignInRecorder interface {
	RecordSignIn(result string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // アクセストークンCookieの有効期間（秒）
}

// AuthHandler はサインイン関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	recorder SignInRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, recorder SignInRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		recorder: recorder,
		config:   config,
	}
}

// meResponse は現在のユーザー情報のAPIレスポンス。
type meResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	ClubID string `json:"club_id,omitempty"`
	Role   string `json:"role"`
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/signin
// 成功・失敗にかかわらずホームへリダイレクトする。
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	// 1. フォームの読み取り
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	// 2. 認証処理
	session, err := h.service.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		h.record(metrics.ResultFailure)
		if model.IsCode(err, model.ErrCodeInvalidCredentials) {
			slog.Info("sign in rejected", slog.String("remote_ip", middleware.ClientIP(r)))
		} else {
			slog.Error("sign in failed", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.record(metrics.ResultSuccess)

	// 3. アクセストークンCookieを設定（HTTP Only）
	h.setTokenCookie(w, session.AccessToken, h.config.SessionMaxAge)

	// 4. ホームにリダイレクト
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignOut はセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.AccessTokenCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			// サインアウトに失敗してもCookieはクリアする
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
		}
	}

	h.setTokenCookie(w, "", -1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Me は現在のサインインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetUser(r.Context(), session.AccessToken)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:     user.ID,
		Email:  user.Email,
		ClubID: middleware.ClubIDFromContext(r.Context()),
		Role:   string(session.Role),
	})
}

func (h *AuthHandler) record(result string) {
	if h.recorder != nil {
		h.recorder.RecordSignIn(result)
	}
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
