package admin

import (
	"context"
	"log/slog"

	"github.com/hitoshi/bookclub/internal/model"
)

// AddReading は新規文献フォームの内容で文献を作成する。
// 成功時は作成された行を一覧の先頭に追加してフォームを空にする。
// 失敗時はフォームの入力内容を保持する。
func (w *Workspace) AddReading(ctx context.Context) error {
	w.NewReading = w.NewReading.normalize()
	if !w.hasTenant("admin.create_reading") {
		return model.NewNoClubError()
	}
	if err := w.validateReading(w.NewReading); err != nil {
		w.svc.logger.Info("reading form rejected", slog.String("error", err.Error()))
		return err
	}

	reading := &model.Reading{
		ClubID:            w.ClubID,
		Title:             w.NewReading.Title,
		Description:       w.NewReading.Description,
		SupplementFeedURL: w.NewReading.SupplementFeedURL,
	}
	if err := w.svc.readings.Create(ctx, reading); err != nil {
		return w.fail("admin.create_reading", err)
	}

	w.Readings = append([]*model.Reading{reading}, w.Readings...)
	w.NewReading = ReadingForm{}
	return nil
}

// BeginEditReading は一覧の文献で編集フォームを初期化する。
// 一覧に存在しない場合はfalseを返す。
func (w *Workspace) BeginEditReading(id int64) bool {
	reading := w.ReadingByID(id)
	if reading == nil {
		return false
	}
	w.EditingReading = &ReadingEdit{
		ID: reading.ID,
		ReadingForm: ReadingForm{
			Title:             reading.Title,
			Description:       reading.Description,
			SupplementFeedURL: reading.SupplementFeedURL,
		},
	}
	return true
}

// CancelEditReading は文献の編集を終了する。
func (w *Workspace) CancelEditReading() {
	w.EditingReading = nil
}

// SaveReading は編集中の文献を更新する。
// 成功時は一覧の同じIDの行を置き換えて編集を終了し、失敗時は編集状態を保持する。
func (w *Workspace) SaveReading(ctx context.Context) error {
	if w.EditingReading == nil {
		return model.NewValidationError("reading", "is not being edited")
	}
	w.EditingReading.ReadingForm = w.EditingReading.ReadingForm.normalize()
	if !w.hasTenant("admin.update_reading") {
		return model.NewNoClubError()
	}
	if err := w.validateReading(w.EditingReading.ReadingForm); err != nil {
		w.svc.logger.Info("reading form rejected", slog.String("error", err.Error()))
		return err
	}

	reading := &model.Reading{
		ID:                w.EditingReading.ID,
		ClubID:            w.ClubID,
		Title:             w.EditingReading.Title,
		Description:       w.EditingReading.Description,
		SupplementFeedURL: w.EditingReading.SupplementFeedURL,
	}
	if err := w.svc.readings.Update(ctx, reading); err != nil {
		return w.fail("admin.update_reading", err)
	}

	replaced := false
	for i, r := range w.Readings {
		if r.ID == reading.ID {
			w.Readings[i] = reading
			replaced = true
			break
		}
	}
	if !replaced {
		w.Readings = append([]*model.Reading{reading}, w.Readings...)
	}
	w.EditingReading = nil
	return nil
}

// DeleteReading は文献を削除する。
// 成功時は一覧から除き、その文献を参照していた集会も一覧から除く（DB側で連鎖削除される）。
func (w *Workspace) DeleteReading(ctx context.Context, id int64) error {
	if !w.hasTenant("admin.delete_reading") {
		return model.NewNoClubError()
	}
	if err := w.svc.readings.Delete(ctx, w.ClubID, id); err != nil {
		return w.fail("admin.delete_reading", err)
	}

	readings := w.Readings[:0:0]
	for _, r := range w.Readings {
		if r.ID != id {
			readings = append(readings, r)
		}
	}
	w.Readings = readings

	meetings := w.Meetings[:0:0]
	for _, m := range w.Meetings {
		if m.ReadingID != id {
			meetings = append(meetings, m)
		}
	}
	w.Meetings = meetings

	if w.EditingReading != nil && w.EditingReading.ID == id {
		w.EditingReading = nil
	}
	return nil
}
