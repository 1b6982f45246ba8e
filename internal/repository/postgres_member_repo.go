package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bookclub/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したクラブ所属リポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindFirstByUserID はユーザーの最も古い所属を返す。所属がない場合はnilを返す。
func (r *PostgresMemberRepo) FindFirstByUserID(ctx context.Context, userID string) (*model.Member, error) {
	member := &model.Member{}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, club_id, role, created_at
		 FROM members
		 WHERE user_id = $1
		 ORDER BY created_at ASC
		 LIMIT 1`,
		userID,
	).Scan(&member.UserID, &member.ClubID, &role, &member.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	member.Role = model.ParseRole(role)
	return member, nil
}

// ListByClubID はクラブのメンバーを最大limit件返す。
func (r *PostgresMemberRepo) ListByClubID(ctx context.Context, clubID string, limit int) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, club_id, role, created_at
		 FROM members
		 WHERE club_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		clubID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.Member
	for rows.Next() {
		member := &model.Member{}
		var role string
		if err := rows.Scan(&member.UserID, &member.ClubID, &role, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		member.Role = model.ParseRole(role)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// Upsert は所属を作成し、既存の場合はroleを更新する。
func (r *PostgresMemberRepo) Upsert(ctx context.Context, member *model.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (user_id, club_id, role, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, club_id) DO UPDATE SET role = EXCLUDED.role`,
		member.UserID, member.ClubID, string(member.Role), member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
