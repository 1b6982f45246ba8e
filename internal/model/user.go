// Package model はドメインモデルを定義する。
package model

import "time"

// User はクラブに参加するサインイン可能なユーザーを表す。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのサインインセッションを表す。
// AccessTokenは発行済みの署名付きトークンで、DBには保存しない。
type Session struct {
	ID          string
	UserID      string
	Email       string
	ClubID      string
	Role        Role
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// HasClub はセッションにテナント（クラブ）が紐付いているかを返す。
func (s *Session) HasClub() bool {
	return s != nil && s.ClubID != ""
}
