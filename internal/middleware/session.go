// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/tenant"
)

// AccessTokenCookieName はアクセストークンを保持するHttpOnly Cookieの名前。
const AccessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey = contextKey("session")
	clubIDContextKey  = contextKey("club_id")
)

// Authenticator はアクセストークンの検証に必要なインターフェース。
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.Session, error)
}

// NewSessionMiddleware はCookieのアクセストークンを検証し、
// セッションとテナント（クラブID）をリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い、または無効なリクエストは未サインインとしてそのまま通過させる。
func NewSessionMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからアクセストークンを取得
			cookie, err := r.Cookie(AccessTokenCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			// 2. トークンとセッションの有効性を検証
			session, err := authenticator.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				if !model.IsCode(err, model.ErrCodeUnauthorized) {
					slog.Error("failed to authenticate session",
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			// 3. セッションとテナントをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// NewRequireSessionMiddleware はサインイン済みのリクエストだけを通すミドルウェアを返す。
// 未サインインの場合は401を統一エラーフォーマットで返す。
func NewRequireSessionMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireRoleMiddleware はトークンのロールが一致するリクエストだけを通すミドルウェアを返す。
// 画面遷移のため、未サインインの場合はホームへリダイレクトし、ロール不一致の場合は403を返す。
func NewRequireRoleMiddleware(role model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			if session.Role != role {
				slog.Warn("role check failed",
					slog.String("user_id", session.UserID),
					slog.String("role", string(session.Role)),
					slog.String("required", string(role)),
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithSession はコンテキストにセッションとトークン由来のクラブIDを注入する。
// テストやミドルウェア以外のコンテキスト生成でも使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	clubID := tenant.FromToken(session.AccessToken)
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.set(session.UserID, clubID)
	}
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, clubIDContextKey, clubID)
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// ClubIDFromContext はリクエストコンテキストからクラブIDを取得する。未解決の場合は空文字。
func ClubIDFromContext(ctx context.Context) string {
	clubID, _ := ctx.Value(clubIDContextKey).(string)
	return clubID
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアで認証されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}
