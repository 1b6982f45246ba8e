package model

import "time"

// Role はクラブ内でのメンバーの権限を表す。
type Role string

const (
	// RoleAdmin は読書会の資料と集会を管理できる権限。
	RoleAdmin Role = "admin"
	// RoleMember は閲覧のみの一般メンバー。
	RoleMember Role = "member"
)

// ParseRole は文字列をRoleに変換する。不明な値は一般メンバーとして扱う。
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleMember
}

// Club はテナント単位となる読書会を表す。
type Club struct {
	ID          string
	Name        string
	MeetingRoom string
	CreatedAt   time.Time
}

// Member はユーザーとクラブの所属関係を表す。
type Member struct {
	UserID    string
	ClubID    string
	Role      Role
	CreatedAt time.Time
}
