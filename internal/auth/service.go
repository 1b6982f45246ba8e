// Package auth はパスワード認証、アクセストークンの発行、セッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionSecret string // トークン署名鍵
	SessionMaxAge int    // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	memberRepo  repository.MemberRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenManager
	notifier    *Notifier
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	memberRepo repository.MemberRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		memberRepo:  memberRepo,
		sessionRepo: sessionRepo,
		tokens:      NewTokenManager(config.SessionSecret),
		notifier:    NewNotifier(),
		config:      config,
		now:         time.Now,
	}
}

// SignInWithPassword はメールアドレスとパスワードで認証し、セッションを発行する。
// 返されるセッションのAccessTokenにはクラブIDを含む署名付きトークンが設定される。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	// 1. ユーザーを検索
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		slog.Info("sign-in rejected", slog.String("email", email))
		return nil, model.NewInvalidCredentialsError()
	}

	// 2. 所属クラブとロールを解決（未所属でもサインインは許可する）
	member, err := s.memberRepo.FindFirstByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		Role:      model.RoleMember,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if member != nil {
		session.ClubID = member.ClubID
		session.Role = member.Role
	}

	// 3. セッションを永続化
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	// 4. アクセストークンを発行
	token, err := s.tokens.Issue(session)
	if err != nil {
		return nil, err
	}
	session.AccessToken = token

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("club_id", session.ClubID),
		slog.String("role", string(session.Role)),
	)

	s.notifier.Publish(EventSignedIn, session)
	return session, nil
}

// SignOut はトークンに対応するセッションを破棄する。
// 期限切れのトークンでもセッション行の削除は行う。
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return model.NewUnauthorizedError()
	}

	claims, err := s.tokens.VerifyIgnoringExpiry(accessToken)
	if err != nil {
		return model.NewUnauthorizedError()
	}

	if err := s.sessionRepo.DeleteByID(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out",
		slog.String("user_id", claims.Subject),
		slog.String("session_id", claims.ID),
	)

	s.notifier.Publish(EventSignedOut, sessionFromClaims(claims, accessToken))
	return nil
}

// Authenticate はアクセストークンを検証し、有効なセッションを返す。
// 署名、有効期限、セッション行の存在をすべて満たす場合のみ成功する。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.Session, error) {
	if accessToken == "" {
		return nil, model.NewUnauthorizedError()
	}

	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		slog.Debug("access token rejected", slog.String("error", err.Error()))
		return nil, model.NewUnauthorizedError()
	}

	stored, err := s.sessionRepo.FindByID(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if stored == nil || stored.UserID != claims.Subject {
		return nil, model.NewUnauthorizedError()
	}

	session := sessionFromClaims(claims, accessToken)
	session.ExpiresAt = stored.ExpiresAt
	session.CreatedAt = stored.CreatedAt
	return session, nil
}

// GetUser はアクセストークンから現在のユーザーを取得する。
func (s *Service) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	session, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// OnAuthStateChange は認証状態の変化を購読する。
func (s *Service) OnAuthStateChange(listener Listener) *Subscription {
	return s.notifier.Subscribe(listener)
}

func sessionFromClaims(claims *Claims, accessToken string) *model.Session {
	session := &model.Session{
		ID:          claims.ID,
		UserID:      claims.Subject,
		Email:       claims.Email,
		ClubID:      claims.ClubID,
		Role:        model.ParseRole(claims.Role),
		AccessToken: accessToken,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time
	}
	return session
}
