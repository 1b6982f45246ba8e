// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
// 文献と集会に対する操作はすべてクラブIDで絞り込まれる。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/bookclub/internal/model"
)

// ClubRepository はクラブデータの永続化インターフェース。
type ClubRepository interface {
	// FindByID は指定IDのクラブを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Club, error)
	// List はクラブを作成日時の昇順で最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.Club, error)
	// Create はクラブを作成する。
	Create(ctx context.Context, club *model.Club) error
}

// MemberRepository はクラブ所属の永続化インターフェース。
type MemberRepository interface {
	// FindFirstByUserID はユーザーの最初の所属を返す。所属がない場合はnilを返す。
	FindFirstByUserID(ctx context.Context, userID string) (*model.Member, error)
	// ListByClubID はクラブのメンバーを最大limit件返す。
	ListByClubID(ctx context.Context, clubID string, limit int) ([]*model.Member, error)
	// Upsert は所属を作成し、既存の場合はroleを更新する。
	Upsert(ctx context.Context, member *model.Member) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepository はサインインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ReadingRepository は文献データの永続化インターフェース。
type ReadingRepository interface {
	// ListByClub はクラブの文献を作成日時の降順で返す。
	ListByClub(ctx context.Context, clubID string) ([]*model.Reading, error)
	// ListByIDs はクラブの文献のうち指定IDに含まれるものを返す。
	ListByIDs(ctx context.Context, clubID string, ids []int64) ([]*model.Reading, error)
	// FindByID は指定IDの文献を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, clubID string, id int64) (*model.Reading, error)
	// Create は文献を作成し、採番されたIDと作成日時をreadingに設定する。
	Create(ctx context.Context, reading *model.Reading) error
	// Update は文献のタイトル、説明、補足資料URLを更新し、更新後の行をreadingに反映する。
	Update(ctx context.Context, reading *model.Reading) error
	// Delete は文献を削除する。
	Delete(ctx context.Context, clubID string, id int64) error
}

// SupplementRepository は補足資料の取り込みに必要な文献データ操作のインターフェース。
type SupplementRepository interface {
	// ListDueForSupplementRefresh は補足資料URLが設定され、
	// 最終取得がstaleBeforeより古い（または未取得の）文献を最大limit件返す。
	ListDueForSupplementRefresh(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Reading, error)
	// SaveSupplements は取得した補足資料を保存し、エラーメッセージをクリアする。
	SaveSupplements(ctx context.Context, readingID int64, supplements []model.Supplement, fetchedAt time.Time) error
	// RecordSupplementError は取得失敗を記録する。既存の補足資料は保持する。
	RecordSupplementError(ctx context.Context, readingID int64, message string, fetchedAt time.Time) error
}

// MeetingRepository は集会データの永続化インターフェース。
type MeetingRepository interface {
	// ListByClub はクラブの集会を開催日時の昇順で返す。
	ListByClub(ctx context.Context, clubID string) ([]*model.Meeting, error)
	// ListByClubWithRoom はクラブの会議室リンクを結合した集会を開催日時の昇順で返す。
	ListByClubWithRoom(ctx context.Context, clubID string) ([]model.MeetingWithRoom, error)
	// Create は集会を作成し、採番されたIDと作成日時をmeetingに設定する。
	Create(ctx context.Context, meeting *model.Meeting) error
	// Update は集会の文献、開催日時、範囲を更新し、更新後の行をmeetingに反映する。
	Update(ctx context.Context, meeting *model.Meeting) error
	// Delete は集会を削除する。
	Delete(ctx context.Context, clubID string, id int64) error
}
