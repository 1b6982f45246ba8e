// Package tenant はセッショントークンからテナント（クラブID）を解決する。
package tenant

import (
	"log/slog"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/bookclub/internal/auth"
	"github.com/hitoshi/bookclub/internal/model"
)

// clubIDClaim はクラブIDを保持するカスタムクレーム名。
const clubIDClaim = "club_id"

// FromToken はトークンのペイロードからクラブIDを取り出す。
// 署名は検証しない（検証はauth.Service.Authenticateの責務）。
// デコードできない場合やクレームが無い場合は空文字を返す。
func FromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		slog.Debug("failed to decode session token", slog.String("error", err.Error()))
		return ""
	}
	clubID, ok := claims[clubIDClaim].(string)
	if !ok {
		return ""
	}
	return clubID
}

// Source は認証状態の変化を購読できる発行元。
type Source interface {
	OnAuthStateChange(listener auth.Listener) *auth.Subscription
}

// Option はResolverの設定関数。
type Option func(*Resolver)

// WithUser は指定ユーザーのセッションに関するイベントだけを反映する。
func WithUser(userID string) Option {
	return func(r *Resolver) {
		r.filter = func(s *model.Session) bool {
			return s != nil && s.UserID == userID
		}
	}
}

// WithSession は指定セッションに関するイベントだけを反映する。
// 同じユーザーの別セッションのサインアウトでは変化しない。
func WithSession(sessionID string) Option {
	return func(r *Resolver) {
		r.filter = func(s *model.Session) bool {
			return s != nil && s.ID == sessionID
		}
	}
}

// WithOnChange はテナントが変化したときに呼ばれるコールバックを設定する。
// コールバックはロック外で呼ばれる。
func WithOnChange(fn func(previous, current string)) Option {
	return func(r *Resolver) {
		r.onChange = fn
	}
}

// Resolver は認証状態の変化に追従して現在のクラブIDを保持する。
type Resolver struct {
	mu       sync.RWMutex
	clubID   string
	filter   func(*model.Session) bool
	onChange func(previous, current string)
	sub      *auth.Subscription
	once     sync.Once
}

// NewResolver はResolverを生成し、sourceを一度だけ購読する。
// initialが指定された場合はそのトークンから初期テナントを解決する。
func NewResolver(source Source, initial *model.Session, opts ...Option) *Resolver {
	r := &Resolver{
		filter: func(*model.Session) bool { return true },
	}
	for _, opt := range opts {
		opt(r)
	}
	if initial != nil {
		r.clubID = FromToken(initial.AccessToken)
	}
	r.sub = source.OnAuthStateChange(r.handle)
	return r
}

// ClubID は現在のクラブIDを返す。未解決の場合は空文字。
func (r *Resolver) ClubID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clubID
}

// Close は購読を解除する。複数回呼んでも解除は1回だけ行われる。
func (r *Resolver) Close() {
	r.once.Do(func() {
		r.sub.Unsubscribe()
	})
}

func (r *Resolver) handle(event auth.Event, session *model.Session) {
	if !r.filter(session) {
		return
	}

	next := ""
	if event != auth.EventSignedOut && session != nil {
		next = FromToken(session.AccessToken)
	}

	r.mu.Lock()
	previous := r.clubID
	r.clubID = next
	r.mu.Unlock()

	if previous != next && r.onChange != nil {
		r.onChange(previous, next)
	}
}
