package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/tenant"
)

// defaultKeepAliveInterval はSSE接続を維持するためのping送信間隔。
const defaultKeepAliveInterval = 25 * time.Second

// EventsHandler はテナントの変化をServer-Sent Eventsで配信するHTTPハンドラー。
// 接続ごとにtenant.Resolverを1つ購読し、切断時に1回だけ解除する。
type EventsHandler struct {
	source    tenant.Source
	keepAlive time.Duration
}

// NewEventsHandler はEventsHandlerを生成する。
func NewEventsHandler(source tenant.Source) *EventsHandler {
	return &EventsHandler{source: source, keepAlive: defaultKeepAliveInterval}
}

// tenantEvent はtenantイベントのペイロード。
type tenantEvent struct {
	ClubID string `json:"club_id"`
}

// Stream は接続中のユーザーのテナントを配信する。
// GET /events
// 接続直後に現在のテナントを送り、以降は変化のたびに送る。サインアウトで終了する。
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// 1. 接続元セッションの認証状態の変化だけを購読
	changes := make(chan string, 8)
	resolver := tenant.NewResolver(h.source, session,
		tenant.WithSession(session.ID),
		tenant.WithOnChange(func(_, current string) {
			select {
			case changes <- current:
			default:
				slog.Warn("dropped tenant change event", slog.String("user_id", session.UserID))
			}
		}),
	)
	defer resolver.Close()

	// 2. 現在のテナントを送信
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	sseWrite(w, "tenant", tenantEvent{ClubID: resolver.ClubID()})
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	// 3. 切断またはサインアウトまで配信を続ける
	for {
		select {
		case <-r.Context().Done():
			return
		case clubID := <-changes:
			sseWrite(w, "tenant", tenantEvent{ClubID: clubID})
			flusher.Flush()
			if clubID == "" {
				sseWrite(w, "signed_out", "")
				flusher.Flush()
				return
			}
		case now := <-ticker.C:
			sseWrite(w, "ping", now.UTC().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	var payload string
	switch v := data.(type) {
	case string:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			payload = fmt.Sprintf("%v", v)
		} else {
			payload = string(b)
		}
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}
