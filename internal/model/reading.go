package model

import "time"

// Reading はクラブで読む文献（課題図書）を表す。
// Descriptionはmarkdownとして表示時にレンダリングされる。
type Reading struct {
	ID                   int64
	ClubID               string
	Title                string
	Description          string
	SupplementFeedURL    string
	Supplements          []Supplement
	SupplementsFetchedAt *time.Time
	SupplementError      string
	CreatedAt            time.Time
}

// Supplement は文献に関連する補足資料へのリンク。
// 補足資料フィードから定期的に取り込まれる。
type Supplement struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
