// Package admin は文献と集会の管理画面の状態と操作を提供する。
// 各操作はバックエンドで確定した結果だけを画面の一覧に反映する。
package admin

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bookclub/internal/model"
)

// ReadingStore は文献の永続化操作。
type ReadingStore interface {
	ListByClub(ctx context.Context, clubID string) ([]*model.Reading, error)
	Create(ctx context.Context, reading *model.Reading) error
	Update(ctx context.Context, reading *model.Reading) error
	Delete(ctx context.Context, clubID string, id int64) error
}

// MeetingStore は集会の永続化操作。
type MeetingStore interface {
	ListByClub(ctx context.Context, clubID string) ([]*model.Meeting, error)
	Create(ctx context.Context, meeting *model.Meeting) error
	Update(ctx context.Context, meeting *model.Meeting) error
	Delete(ctx context.Context, clubID string, id int64) error
}

// URLValidator は補足資料フィードのURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ErrorRecorder はバックエンドエラーを記録する。
type ErrorRecorder interface {
	RecordBackendError(operation string)
}

// Tab は管理画面のタブ。
type Tab string

const (
	TabReadings Tab = "readings"
	TabMeetings Tab = "meetings"
)

// ParseTab はクエリ文字列の値をタブに変換する。不明な値は文献タブになる。
func ParseTab(s string) Tab {
	if Tab(s) == TabMeetings {
		return TabMeetings
	}
	return TabReadings
}

// ReadingForm は文献の入力フォーム。
type ReadingForm struct {
	Title             string
	Description       string
	SupplementFeedURL string
}

// MeetingForm は集会の入力フォーム。ScheduledForはdatetime-local形式の文字列。
type MeetingForm struct {
	ReadingID    int64
	ScheduledFor string
	Section      string
}

// ReadingEdit は編集中の文献。
type ReadingEdit struct {
	ID int64
	ReadingForm
}

// MeetingEdit は編集中の集会。
type MeetingEdit struct {
	ID int64
	MeetingForm
}

// Service は管理画面のワークスペースを生成する。
type Service struct {
	readings  ReadingStore
	meetings  MeetingStore
	validator URLValidator
	recorder  ErrorRecorder
	location  *time.Location
	logger    *slog.Logger
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	readings ReadingStore,
	meetings MeetingStore,
	validator URLValidator,
	recorder ErrorRecorder,
	location *time.Location,
	logger *slog.Logger,
) *Service {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		readings:  readings,
		meetings:  meetings,
		validator: validator,
		recorder:  recorder,
		location:  location,
		logger:    logger,
	}
}

// Location はクラブのタイムゾーンを返す。
func (s *Service) Location() *time.Location {
	return s.location
}

// Workspace は管理画面1回分の状態。
type Workspace struct {
	ClubID string
	Tab    Tab

	Readings []*model.Reading
	Meetings []*model.Meeting

	NewReading ReadingForm
	NewMeeting MeetingForm

	EditingReading *ReadingEdit
	EditingMeeting *MeetingEdit

	svc *Service
}

// NewWorkspace はクラブの空のワークスペースを生成する。
func (s *Service) NewWorkspace(clubID string, tab Tab) *Workspace {
	if tab == "" {
		tab = TabReadings
	}
	return &Workspace{
		ClubID: clubID,
		Tab:    tab,
		svc:    s,
	}
}

// Location はクラブのタイムゾーンを返す。
func (w *Workspace) Location() *time.Location {
	return w.svc.location
}

// hasTenant はテナントが解決済みかを返す。未解決の場合はデバッグログを出す。
func (w *Workspace) hasTenant(operation string) bool {
	if w.ClubID != "" {
		return true
	}
	w.svc.logger.Debug("club id is undefined",
		slog.String("view", "admin"),
		slog.String("operation", operation),
	)
	return false
}

func (w *Workspace) fail(operation string, err error) error {
	w.svc.logger.Error("admin operation failed",
		slog.String("operation", operation),
		slog.String("club_id", w.ClubID),
		slog.String("error", err.Error()),
	)
	if w.svc.recorder != nil {
		w.svc.recorder.RecordBackendError(operation)
	}
	return err
}

// Load は文献と集会の一覧を両方取得する。
// どちらかが失敗しても他方の取得は行い、最初のエラーを返す。
func (w *Workspace) Load(ctx context.Context) error {
	readingsErr := w.FetchReadings(ctx)
	meetingsErr := w.FetchMeetings(ctx)
	if readingsErr != nil {
		return readingsErr
	}
	return meetingsErr
}

// FetchReadings は文献一覧を作成日時の降順で取得する。
// 失敗した場合は以前の一覧を保持する。
func (w *Workspace) FetchReadings(ctx context.Context) error {
	if !w.hasTenant("admin.list_readings") {
		return nil
	}
	readings, err := w.svc.readings.ListByClub(ctx, w.ClubID)
	if err != nil {
		return w.fail("admin.list_readings", err)
	}
	w.Readings = readings
	return nil
}

// FetchMeetings は集会一覧を開催日時の昇順で取得する。
// 失敗した場合は以前の一覧を保持する。
func (w *Workspace) FetchMeetings(ctx context.Context) error {
	if !w.hasTenant("admin.list_meetings") {
		return nil
	}
	meetings, err := w.svc.meetings.ListByClub(ctx, w.ClubID)
	if err != nil {
		return w.fail("admin.list_meetings", err)
	}
	w.Meetings = meetings
	return nil
}

// ReadingByID は一覧から文献を探す。
func (w *Workspace) ReadingByID(id int64) *model.Reading {
	for _, r := range w.Readings {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// MeetingByID は一覧から集会を探す。
func (w *Workspace) MeetingByID(id int64) *model.Meeting {
	for _, m := range w.Meetings {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// normalize は前後の空白を取り除いたフォームを返す。
func (f ReadingForm) normalize() ReadingForm {
	return ReadingForm{
		Title:             strings.TrimSpace(f.Title),
		Description:       strings.TrimSpace(f.Description),
		SupplementFeedURL: strings.TrimSpace(f.SupplementFeedURL),
	}
}

func (w *Workspace) validateReading(f ReadingForm) error {
	if f.Title == "" {
		return model.NewValidationError("title", "is required")
	}
	if f.Description == "" {
		return model.NewValidationError("description", "is required")
	}
	if f.SupplementFeedURL != "" && w.svc.validator != nil {
		if err := w.svc.validator.ValidateURL(f.SupplementFeedURL); err != nil {
			return model.NewInvalidURLError(err.Error())
		}
	}
	return nil
}

func (f MeetingForm) normalize() MeetingForm {
	return MeetingForm{
		ReadingID:    f.ReadingID,
		ScheduledFor: strings.TrimSpace(f.ScheduledFor),
		Section:      strings.TrimSpace(f.Section),
	}
}

// validateMeeting はフォームを検証し、解釈した開催日時を返す。
func (w *Workspace) validateMeeting(f MeetingForm) (time.Time, error) {
	if f.ReadingID <= 0 {
		return time.Time{}, model.NewValidationError("reading", "is required")
	}
	if f.ScheduledFor == "" {
		return time.Time{}, model.NewValidationError("scheduled time", "is required")
	}
	scheduled, err := ParseLocalInput(f.ScheduledFor, w.svc.location)
	if err != nil {
		return time.Time{}, model.NewValidationError("scheduled time", "must look like 2026-01-31T19:00")
	}
	if f.Section == "" {
		return time.Time{}, model.NewValidationError("section", "is required")
	}
	return scheduled, nil
}
