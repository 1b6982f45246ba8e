// Package backend はデータベース接続、リポジトリ、認証サービスを一つのクライアントにまとめる。
// ビューはこのクライアントを通してのみバックエンドにアクセスする。
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookclub/internal/auth"
	"github.com/hitoshi/bookclub/internal/config"
	"github.com/hitoshi/bookclub/internal/database"
	"github.com/hitoshi/bookclub/internal/repository"
)

// pingTimeout は起動時の疎通確認のタイムアウト。
const pingTimeout = 5 * time.Second

// Client はプロセス内で共有されるバックエンドクライアント。
type Client struct {
	db *sql.DB

	Auth        *auth.Service
	Clubs       repository.ClubRepository
	Members     repository.MemberRepository
	Users       repository.UserRepository
	Sessions    repository.SessionRepository
	Readings    repository.ReadingRepository
	Supplements repository.SupplementRepository
	Meetings    repository.MeetingRepository
}

// Open は設定のデータベースURLに接続し、疎通を確認してClientを返す。
func Open(ctx context.Context, cfg *config.Config) (*Client, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(ctx, db, pingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return New(db, cfg), nil
}

// New は既存のDB接続からClientを構築する。
func New(db *sql.DB, cfg *config.Config) *Client {
	userRepo := repository.NewPostgresUserRepo(db)
	memberRepo := repository.NewPostgresMemberRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	readingRepo := repository.NewPostgresReadingRepo(db)

	return &Client{
		db: db,
		Auth: auth.NewService(userRepo, memberRepo, sessionRepo, auth.ServiceConfig{
			SessionSecret: cfg.SessionSecret,
			SessionMaxAge: cfg.SessionMaxAge,
		}),
		Clubs:       repository.NewPostgresClubRepo(db),
		Members:     memberRepo,
		Users:       userRepo,
		Sessions:    sessionRepo,
		Readings:    readingRepo,
		Supplements: readingRepo,
		Meetings:    repository.NewPostgresMeetingRepo(db),
	}
}

// DB は内部のDB接続を返す。ヘルスチェックとクリーンアップジョブが使用する。
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping はデータベースの疎通を確認する。
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close はDB接続を閉じる。
func (c *Client) Close() error {
	return c.db.Close()
}
