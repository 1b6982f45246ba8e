package handler

import (
	"net/http"

	"github.com/hitoshi/bookclub/internal/home"
	"github.com/hitoshi/bookclub/internal/middleware"
)

// CalendarHandler はカレンダーウィジェット向けの集会一覧を返すHTTPハンドラー。
type CalendarHandler struct {
	home HomeLoader
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(home HomeLoader) *CalendarHandler {
	return &CalendarHandler{home: home}
}

// Events は今後の集会をカレンダーイベントとして返す。
// GET /api/calendar
func (h *CalendarHandler) Events(w http.ResponseWriter, r *http.Request) {
	dashboard := h.home.Load(r.Context(), middleware.ClubIDFromContext(r.Context()))
	events := home.CalendarEvents(dashboard)
	if events == nil {
		events = []home.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
