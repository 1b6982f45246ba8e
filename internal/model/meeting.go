package model

import "time"

// Meeting は文献の特定の範囲（Section）を扱う集会を表す。
// ReadingIDは同じクラブの文献を参照する。
type Meeting struct {
	ID           int64
	ClubID       string
	ReadingID    int64
	ScheduledFor time.Time
	Section      string
	CreatedAt    time.Time
}

// MeetingWithRoom はクラブのオンライン会議室リンクを結合した集会。
type MeetingWithRoom struct {
	Meeting
	MeetingRoom string
}
