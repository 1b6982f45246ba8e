// Package user はユーザーとクラブ所属の登録処理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bookclub/internal/auth"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/repository"
)

// ProvisionInput はユーザー登録の入力。
// ClubIDが空の場合はClubNameで新しいクラブを作成する。
type ProvisionInput struct {
	ClubID      string
	ClubName    string
	MeetingRoom string
	Email       string
	Password    string
	Role        model.Role
}

// ProvisionResult はユーザー登録の結果。
type ProvisionResult struct {
	Club        *model.Club
	User        *model.User
	Member      *model.Member
	ClubCreated bool
	UserCreated bool
}

// Service はユーザー管理のサービス層。
type Service struct {
	clubRepo   repository.ClubRepository
	userRepo   repository.UserRepository
	memberRepo repository.MemberRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	clubRepo repository.ClubRepository,
	userRepo repository.UserRepository,
	memberRepo repository.MemberRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		clubRepo:   clubRepo,
		userRepo:   userRepo,
		memberRepo: memberRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// Provision はクラブ、ユーザー、所属をまとめて登録する。
// 既存のメールアドレスの場合はパスワードを再設定し、所属のroleを上書きする。
// 1. 入力を検証してパスワードをハッシュ化
// 2. クラブを取得または作成
// 3. ユーザーを取得または作成
// 4. 所属をUPSERT
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*ProvisionResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.ClubID = strings.TrimSpace(in.ClubID)
	in.ClubName = strings.TrimSpace(in.ClubName)

	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, model.NewValidationError("email", "must be a valid address")
	}
	if in.ClubID == "" && in.ClubName == "" {
		return nil, model.NewValidationError("club", "requires an id or a name")
	}
	if in.Role != model.RoleAdmin && in.Role != model.RoleMember {
		return nil, model.NewValidationError("role", "must be admin or member")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, model.NewValidationError("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}

	now := s.now().UTC()
	result := &ProvisionResult{}

	if in.ClubID != "" {
		club, err := s.clubRepo.FindByID(ctx, in.ClubID)
		if err != nil {
			return nil, fmt.Errorf("failed to find club: %w", err)
		}
		if club == nil {
			return nil, model.NewValidationError("club", "does not exist")
		}
		result.Club = club
	} else {
		club := &model.Club{
			ID:          uuid.New().String(),
			Name:        in.ClubName,
			MeetingRoom: strings.TrimSpace(in.MeetingRoom),
			CreatedAt:   now,
		}
		if err := s.clubRepo.Create(ctx, club); err != nil {
			return nil, fmt.Errorf("failed to create club: %w", err)
		}
		result.Club = club
		result.ClubCreated = true
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		if err := s.userRepo.UpdatePasswordHash(ctx, existing.ID, hash); err != nil {
			return nil, fmt.Errorf("failed to reset password: %w", err)
		}
		existing.PasswordHash = hash
		result.User = existing
	} else {
		u := &model.User{
			ID:           uuid.New().String(),
			Email:        in.Email,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.userRepo.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		result.User = u
		result.UserCreated = true
	}

	member := &model.Member{
		UserID:    result.User.ID,
		ClubID:    result.Club.ID,
		Role:      in.Role,
		CreatedAt: now,
	}
	if err := s.memberRepo.Upsert(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to save membership: %w", err)
	}
	result.Member = member

	s.logger.Info("user provisioned",
		slog.String("user_id", result.User.ID),
		slog.String("club_id", result.Club.ID),
		slog.String("role", string(in.Role)),
		slog.Bool("club_created", result.ClubCreated),
		slog.Bool("user_created", result.UserCreated),
	)
	return result, nil
}
