package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookclub/internal/admin"
	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/view"
)

// WorkspaceFactory は管理画面の状態コンテナを生成するインターフェース。
type WorkspaceFactory interface {
	NewWorkspace(clubID string, tab admin.Tab) *admin.Workspace
}

// AdminHandler は文献と集会の管理画面のHTTPハンドラー。
// リクエストごとにWorkspaceを生成して一覧を読み込み、操作を適用した結果をそのまま描画する。
type AdminHandler struct {
	workspaces WorkspaceFactory
	renderer   PageRenderer
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(workspaces WorkspaceFactory, renderer PageRenderer) *AdminHandler {
	return &AdminHandler{workspaces: workspaces, renderer: renderer}
}

// Show は管理画面を描画する。
// GET /admin?tab=readings|meetings&edit={id}
func (h *AdminHandler) Show(w http.ResponseWriter, r *http.Request) {
	ws := h.load(r, admin.ParseTab(r.URL.Query().Get("tab")))

	status := http.StatusOK
	if raw := r.URL.Query().Get("edit"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			status = http.StatusBadRequest
		} else if !h.beginEdit(ws, id) {
			status = http.StatusNotFound
		}
	}
	h.render(w, r, status, ws)
}

// CreateReading は文献を作成する。
// POST /admin/readings
func (h *AdminHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	ws := h.load(r, admin.TabReadings)
	ws.NewReading = readingFormFrom(r)
	h.render(w, r, statusFor(ws.AddReading(r.Context())), ws)
}

// UpdateReading は文献を更新する。フォームにcancelが含まれる場合は編集を終了する。
// POST /admin/readings/{id}
func (h *AdminHandler) UpdateReading(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ws := h.load(r, admin.TabReadings)
	if !ws.BeginEditReading(id) {
		h.render(w, r, http.StatusNotFound, ws)
		return
	}
	if r.PostFormValue("cancel") != "" {
		ws.CancelEditReading()
		h.render(w, r, http.StatusOK, ws)
		return
	}
	ws.EditingReading.ReadingForm = readingFormFrom(r)
	h.render(w, r, statusFor(ws.SaveReading(r.Context())), ws)
}

// DeleteReading は文献を削除する。
// POST /admin/readings/{id}/delete
func (h *AdminHandler) DeleteReading(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ws := h.load(r, admin.TabReadings)
	h.render(w, r, statusFor(ws.DeleteReading(r.Context(), id)), ws)
}

// CreateMeeting は集会を作成する。
// POST /admin/meetings
func (h *AdminHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	ws := h.load(r, admin.TabMeetings)
	ws.NewMeeting = meetingFormFrom(r)
	h.render(w, r, statusFor(ws.AddMeeting(r.Context())), ws)
}

// UpdateMeeting は集会を更新する。フォームにcancelが含まれる場合は編集を終了する。
// POST /admin/meetings/{id}
func (h *AdminHandler) UpdateMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ws := h.load(r, admin.TabMeetings)
	if !ws.BeginEditMeeting(id) {
		h.render(w, r, http.StatusNotFound, ws)
		return
	}
	if r.PostFormValue("cancel") != "" {
		ws.CancelEditMeeting()
		h.render(w, r, http.StatusOK, ws)
		return
	}
	ws.EditingMeeting.MeetingForm = meetingFormFrom(r)
	h.render(w, r, statusFor(ws.SaveMeeting(r.Context())), ws)
}

// DeleteMeeting は集会を削除する。
// POST /admin/meetings/{id}/delete
func (h *AdminHandler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ws := h.load(r, admin.TabMeetings)
	h.render(w, r, statusFor(ws.DeleteMeeting(r.Context(), id)), ws)
}

// load はリクエストのテナントでWorkspaceを生成し、文献と集会の一覧を読み込む。
// 読み込みの失敗はWorkspace内でログとメトリクスに記録済みのため、ここでは無視する。
func (h *AdminHandler) load(r *http.Request, tab admin.Tab) *admin.Workspace {
	ws := h.workspaces.NewWorkspace(middleware.ClubIDFromContext(r.Context()), tab)
	_ = ws.Load(r.Context())
	return ws
}

func (h *AdminHandler) beginEdit(ws *admin.Workspace, id int64) bool {
	if ws.Tab == admin.TabMeetings {
		return ws.BeginEditMeeting(id)
	}
	return ws.BeginEditReading(id)
}

func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, status int, ws *admin.Workspace) {
	page := &view.AdminPage{
		Page:      newPage(r, "/admin"),
		Workspace: ws,
	}
	writeHTML(w, status, func(w http.ResponseWriter) error {
		return h.renderer.RenderAdmin(w, page)
	})
}

// statusFor は操作結果に対応するHTTPステータスを返す。
// 入力やテナントの問題はAPIErrorのステータス、バックエンドの失敗は直前の状態を描画するため200とする。
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return middleware.StatusForCode(apiErr.Code)
	}
	return http.StatusOK
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		slog.Warn("invalid id parameter", slog.String("id", chi.URLParam(r, "id")))
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func readingFormFrom(r *http.Request) admin.ReadingForm {
	return admin.ReadingForm{
		Title:             r.PostFormValue("title"),
		Description:       r.PostFormValue("description"),
		SupplementFeedURL: r.PostFormValue("supplement_feed_url"),
	}
}

// meetingFormFrom はフォームから集会の入力値を読み取る。文献IDが数値でない場合は未選択として扱う。
func meetingFormFrom(r *http.Request) admin.MeetingForm {
	readingID, _ := strconv.ParseInt(r.PostFormValue("reading_id"), 10, 64)
	return admin.MeetingForm{
		ReadingID:    readingID,
		ScheduledFor: r.PostFormValue("scheduled_for"),
		Section:      r.PostFormValue("section"),
	}
}
