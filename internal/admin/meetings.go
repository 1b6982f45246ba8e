package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/bookclub/internal/model"
)

// AddMeeting は新規集会フォームの内容で集会を作成する。
// 成功時は作成された行を一覧の先頭に追加してフォームを空にする。
func (w *Workspace) AddMeeting(ctx context.Context) error {
	w.NewMeeting = w.NewMeeting.normalize()
	if !w.hasTenant("admin.create_meeting") {
		return model.NewNoClubError()
	}
	scheduled, err := w.validateMeeting(w.NewMeeting)
	if err != nil {
		w.svc.logger.Info("meeting form rejected", slog.String("error", err.Error()))
		return err
	}

	meeting := &model.Meeting{
		ClubID:       w.ClubID,
		ReadingID:    w.NewMeeting.ReadingID,
		ScheduledFor: scheduled,
		Section:      w.NewMeeting.Section,
	}
	if err := w.svc.meetings.Create(ctx, meeting); err != nil {
		return w.fail("admin.create_meeting", err)
	}

	w.Meetings = append([]*model.Meeting{meeting}, w.Meetings...)
	w.NewMeeting = MeetingForm{}
	return nil
}

// BeginEditMeeting は一覧の集会で編集フォームを初期化する。
// 開催日時はクラブのタイムゾーンの編集用文字列に変換する。
func (w *Workspace) BeginEditMeeting(id int64) bool {
	meeting := w.MeetingByID(id)
	if meeting == nil {
		return false
	}
	w.EditingMeeting = &MeetingEdit{
		ID: meeting.ID,
		MeetingForm: MeetingForm{
			ReadingID:    meeting.ReadingID,
			ScheduledFor: FormatLocalInput(meeting.ScheduledFor, w.svc.location),
			Section:      meeting.Section,
		},
	}
	return true
}

// CancelEditMeeting は集会の編集を終了する。
func (w *Workspace) CancelEditMeeting() {
	w.EditingMeeting = nil
}

// SaveMeeting は編集中の集会を更新する。
// 成功時は一覧の同じIDの行を置き換えて編集を終了し、失敗時は編集状態を保持する。
func (w *Workspace) SaveMeeting(ctx context.Context) error {
	if w.EditingMeeting == nil {
		return model.NewValidationError("meeting", "is not being edited")
	}
	w.EditingMeeting.MeetingForm = w.EditingMeeting.MeetingForm.normalize()
	if !w.hasTenant("admin.update_meeting") {
		return model.NewNoClubError()
	}
	scheduled, err := w.validateMeeting(w.EditingMeeting.MeetingForm)
	if err != nil {
		w.svc.logger.Info("meeting form rejected", slog.String("error", err.Error()))
		return err
	}
	// 未編集の日時は保存済みの時刻を保つ（夏時間終了時に2回現れる時刻を含む）
	if original := w.MeetingByID(w.EditingMeeting.ID); original != nil &&
		FormatLocalInput(scheduled, w.svc.location) == FormatLocalInput(original.ScheduledFor, w.svc.location) {
		scheduled = original.ScheduledFor.Truncate(time.Minute)
	}

	meeting := &model.Meeting{
		ID:           w.EditingMeeting.ID,
		ClubID:       w.ClubID,
		ReadingID:    w.EditingMeeting.ReadingID,
		ScheduledFor: scheduled,
		Section:      w.EditingMeeting.Section,
	}
	if err := w.svc.meetings.Update(ctx, meeting); err != nil {
		return w.fail("admin.update_meeting", err)
	}

	replaced := false
	for i, m := range w.Meetings {
		if m.ID == meeting.ID {
			w.Meetings[i] = meeting
			replaced = true
			break
		}
	}
	if !replaced {
		w.Meetings = append([]*model.Meeting{meeting}, w.Meetings...)
	}
	w.EditingMeeting = nil
	return nil
}

// DeleteMeeting は集会を削除する。成功時は一覧から除く。
func (w *Workspace) DeleteMeeting(ctx context.Context, id int64) error {
	if !w.hasTenant("admin.delete_meeting") {
		return model.NewNoClubError()
	}
	if err := w.svc.meetings.Delete(ctx, w.ClubID, id); err != nil {
		return w.fail("admin.delete_meeting", err)
	}

	meetings := w.Meetings[:0:0]
	for _, m := range w.Meetings {
		if m.ID != id {
			meetings = append(meetings, m)
		}
	}
	w.Meetings = meetings

	if w.EditingMeeting != nil && w.EditingMeeting.ID == id {
		w.EditingMeeting = nil
	}
	return nil
}
