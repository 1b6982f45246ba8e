// Package home はホーム画面の表示データ（次回の集会と今後の集会一覧）を組み立てる。
package home

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/bookclub/internal/model"
)

// MeetingSource は会議室リンク付きの集会一覧を取得する。
type MeetingSource interface {
	ListByClubWithRoom(ctx context.Context, clubID string) ([]model.MeetingWithRoom, error)
}

// ReadingSource は指定IDの文献を取得する。
type ReadingSource interface {
	ListByIDs(ctx context.Context, clubID string, ids []int64) ([]*model.Reading, error)
}

// ErrorRecorder はバックエンドエラーを記録する。
type ErrorRecorder interface {
	RecordBackendError(operation string)
}

// Dashboard はホーム画面の状態。
// 集会の取得後に文献の取得が失敗した場合、Readingsは空のまま返る。
type Dashboard struct {
	ClubID   string
	Upcoming []model.MeetingWithRoom
	Next     *model.MeetingWithRoom
	Readings map[int64]*model.Reading
}

// Row は今後の集会一覧の1行。
type Row struct {
	Meeting model.MeetingWithRoom
	Reading *model.Reading
}

// Rows は文献が読み込まれている集会だけを行として返す。
func (d *Dashboard) Rows() []Row {
	rows := make([]Row, 0, len(d.Upcoming))
	for _, m := range d.Upcoming {
		reading, ok := d.Readings[m.ReadingID]
		if !ok {
			continue
		}
		rows = append(rows, Row{Meeting: m, Reading: reading})
	}
	return rows
}

// NextReading は次回の集会で扱う文献を返す。未読み込みの場合はnil。
func (d *Dashboard) NextReading() *model.Reading {
	if d.Next == nil {
		return nil
	}
	return d.Readings[d.Next.ReadingID]
}

// Service はホーム画面のデータ取得を行う。
type Service struct {
	meetings MeetingSource
	readings ReadingSource
	recorder ErrorRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(meetings MeetingSource, readings ReadingSource, recorder ErrorRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		meetings: meetings,
		readings: readings,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Load はクラブの今後の集会と関連する文献を取得する。
// エラーはログに記録して処理を打ち切り、その時点までの状態を返す。
func (s *Service) Load(ctx context.Context, clubID string) *Dashboard {
	d := &Dashboard{
		ClubID:   clubID,
		Readings: make(map[int64]*model.Reading),
	}

	// 1. テナント未解決の場合はクエリを発行しない
	if clubID == "" {
		s.logger.Debug("club id is undefined", slog.String("view", "home"))
		return d
	}

	// 2. 集会を開催日時の昇順で取得
	meetings, err := s.meetings.ListByClubWithRoom(ctx, clubID)
	if err != nil {
		s.fail("home.meetings", clubID, err)
		return d
	}

	// 3. 今後の集会と次回の集会を抽出
	d.Upcoming = SplitUpcoming(meetings, s.now())
	if len(d.Upcoming) > 0 {
		d.Next = &d.Upcoming[0]
	}

	// 4. 今後の集会が参照する文献を取得
	ids := DistinctReadingIDs(d.Upcoming)
	if len(ids) == 0 {
		return d
	}
	readings, err := s.readings.ListByIDs(ctx, clubID, ids)
	if err != nil {
		s.fail("home.readings", clubID, err)
		return d
	}
	for _, r := range readings {
		d.Readings[r.ID] = r
	}

	return d
}

func (s *Service) fail(operation, clubID string, err error) {
	s.logger.Error("failed to load home data",
		slog.String("operation", operation),
		slog.String("club_id", clubID),
		slog.String("error", err.Error()),
	)
	if s.recorder != nil {
		s.recorder.RecordBackendError(operation)
	}
}

// SplitUpcoming は開催日時がnowより後の集会だけを元の順序のまま返す。
func SplitUpcoming(meetings []model.MeetingWithRoom, now time.Time) []model.MeetingWithRoom {
	upcoming := make([]model.MeetingWithRoom, 0, len(meetings))
	for _, m := range meetings {
		if m.ScheduledFor.After(now) {
			upcoming = append(upcoming, m)
		}
	}
	return upcoming
}

// DistinctReadingIDs は集会が参照する文献IDを出現順に重複なく返す。
func DistinctReadingIDs(meetings []model.MeetingWithRoom) []int64 {
	seen := make(map[int64]struct{}, len(meetings))
	ids := make([]int64, 0, len(meetings))
	for _, m := range meetings {
		if _, ok := seen[m.ReadingID]; ok {
			continue
		}
		seen[m.ReadingID] = struct{}{}
		ids = append(ids, m.ReadingID)
	}
	return ids
}
