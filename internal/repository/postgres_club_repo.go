package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bookclub/internal/model"
)

// PostgresClubRepo はPostgreSQLを使用したクラブリポジトリ。
type PostgresClubRepo struct {
	db *sql.DB
}

// NewPostgresClubRepo はPostgresClubRepoを生成する。
func NewPostgresClubRepo(db *sql.DB) *PostgresClubRepo {
	return &PostgresClubRepo{db: db}
}

// FindByID は指定IDのクラブを取得する。見つからない場合はnilを返す。
func (r *PostgresClubRepo) FindByID(ctx context.Context, id string) (*model.Club, error) {
	club := &model.Club{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, club_name, meeting_room, created_at FROM clubs WHERE id = $1`, id,
	).Scan(&club.ID, &club.Name, &club.MeetingRoom, &club.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find club: %w", err)
	}
	return club, nil
}

// List はクラブを作成日時の昇順で最大limit件返す。
func (r *PostgresClubRepo) List(ctx context.Context, limit int) ([]*model.Club, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, club_name, meeting_room, created_at
		 FROM clubs
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clubs: %w", err)
	}
	defer rows.Close()

	var clubs []*model.Club
	for rows.Next() {
		club := &model.Club{}
		if err := rows.Scan(&club.ID, &club.Name, &club.MeetingRoom, &club.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan club: %w", err)
		}
		clubs = append(clubs, club)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clubs: %w", err)
	}
	return clubs, nil
}

// Create はクラブを作成する。
func (r *PostgresClubRepo) Create(ctx context.Context, club *model.Club) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clubs (id, club_name, meeting_room, created_at) VALUES ($1, $2, $3, $4)`,
		club.ID, club.Name, club.MeetingRoom, club.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create club: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ClubRepository = (*PostgresClubRepo)(nil)
