package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bookclub/internal/admin"
	"github.com/hitoshi/bookclub/internal/auth"
	"github.com/hitoshi/bookclub/internal/home"
	"github.com/hitoshi/bookclub/internal/metrics"
	"github.com/hitoshi/bookclub/internal/middleware"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/security"
	"github.com/hitoshi/bookclub/internal/view"
)

const testCSRFToken = "csrf-test-token"

// --- インメモリのストア ---

type memReadings struct {
	mu        sync.Mutex
	rows      []*model.Reading
	nextID    int64
	listCalls int
}

func (m *memReadings) add(clubID, title string) *model.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r := &model.Reading{
		ID:          m.nextID,
		ClubID:      clubID,
		Title:       title,
		Description: "About " + title,
		CreatedAt:   time.Unix(1_700_000_000+m.nextID, 0),
	}
	m.rows = append(m.rows, r)
	return r
}

func (m *memReadings) ListByClub(_ context.Context, clubID string) ([]*model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*model.Reading
	for _, r := range m.rows {
		if r.ClubID == clubID {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memReadings) ListByIDs(_ context.Context, clubID string, ids []int64) ([]*model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Reading
	for _, r := range m.rows {
		for _, id := range ids {
			if r.ID == id && r.ClubID == clubID {
				copied := *r
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (m *memReadings) Create(_ context.Context, reading *model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	reading.ID = m.nextID
	reading.CreatedAt = time.Unix(1_700_000_000+m.nextID, 0)
	copied := *reading
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *memReadings) Update(_ context.Context, reading *model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == reading.ID && r.ClubID == reading.ClubID {
			r.Title, r.Description, r.SupplementFeedURL = reading.Title, reading.Description, reading.SupplementFeedURL
			reading.CreatedAt = r.CreatedAt
			return nil
		}
	}
	return model.NewReadingNotFoundError(reading.ID)
}

func (m *memReadings) Delete(_ context.Context, clubID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id && r.ClubID == clubID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return model.NewReadingNotFoundError(id)
}

func (m *memReadings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memMeetings struct {
	mu        sync.Mutex
	rows      []*model.Meeting
	rooms     map[string]string
	nextID    int64
	listCalls int
}

func (m *memMeetings) add(clubID string, readingID int64, at time.Time, section string) *model.Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	meeting := &model.Meeting{ID: m.nextID, ClubID: clubID, ReadingID: readingID, ScheduledFor: at, Section: section}
	m.rows = append(m.rows, meeting)
	return meeting
}

func (m *memMeetings) ListByClub(_ context.Context, clubID string) ([]*model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*model.Meeting
	for _, r := range m.rows {
		if r.ClubID == clubID {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (m *memMeetings) ListByClubWithRoom(ctx context.Context, clubID string) ([]model.MeetingWithRoom, error) {
	rows, _ := m.ListByClub(ctx, clubID)
	out := make([]model.MeetingWithRoom, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MeetingWithRoom{Meeting: *r, MeetingRoom: m.rooms[clubID]})
	}
	return out, nil
}

func (m *memMeetings) Create(_ context.Context, meeting *model.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	meeting.ID = m.nextID
	copied := *meeting
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *memMeetings) Update(_ context.Context, meeting *model.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == meeting.ID && r.ClubID == meeting.ClubID {
			r.ReadingID, r.ScheduledFor, r.Section = meeting.ReadingID, meeting.ScheduledFor, meeting.Section
			return nil
		}
	}
	return model.NewMeetingNotFoundError(meeting.ID)
}

func (m *memMeetings) Delete(_ context.Context, clubID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id && r.ClubID == clubID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return model.NewMeetingNotFoundError(id)
}

func (m *memMeetings) find(id int64) *model.Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			copied := *r
			return &copied
		}
	}
	return nil
}

// --- 認証のモック ---

// mockAuth はトークン文字列をキーにセッションを保持する認証サービスのモック。
type mockAuth struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	users    map[string]*model.User
	password string
	signOuts []string
	notifier *auth.Notifier
	nextID   int
}

func newMockAuth() *mockAuth {
	return &mockAuth{
		sessions: make(map[string]*model.Session),
		users:    make(map[string]*model.User),
		password: "correct horse",
		notifier: auth.NewNotifier(),
	}
}

// addSession はclub_idクレーム付きのトークンでセッションを登録し、トークンを返す。
func (m *mockAuth) addSession(t *testing.T, userID, clubID string, role model.Role) string {
	t.Helper()
	m.mu.Lock()
	m.nextID++
	sessionID := userID + "-session-" + strconv.Itoa(m.nextID)
	m.mu.Unlock()

	claims := jwt.MapClaims{"sub": userID, "jti": sessionID, "role": string(role)}
	if clubID != "" {
		claims["club_id"] = clubID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("handler-test"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = &model.Session{
		ID:          sessionID,
		UserID:      userID,
		Email:       userID + "@example.com",
		ClubID:      clubID,
		Role:        role,
		AccessToken: token,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	m.users[userID] = &model.User{ID: userID, Email: userID + "@example.com"}
	return token
}

func (m *mockAuth) session(token string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[token]
}

func (m *mockAuth) Authenticate(_ context.Context, token string) (*model.Session, error) {
	if s := m.session(token); s != nil {
		return s, nil
	}
	return nil, model.NewUnauthorizedError()
}

func (m *mockAuth) SignInWithPassword(_ context.Context, email, password string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if password != m.password {
		return nil, model.NewInvalidCredentialsError()
	}
	for _, s := range m.sessions {
		if s.Email == email {
			m.notifier.Publish(auth.EventSignedIn, s)
			return s, nil
		}
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuth) SignOut(_ context.Context, token string) error {
	m.mu.Lock()
	s := m.sessions[token]
	delete(m.sessions, token)
	m.signOuts = append(m.signOuts, token)
	m.mu.Unlock()
	if s != nil {
		m.notifier.Publish(auth.EventSignedOut, s)
	}
	return nil
}

func (m *mockAuth) GetUser(_ context.Context, token string) (*model.User, error) {
	s := m.session(token)
	if s == nil {
		return nil, model.NewUnauthorizedError()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[s.UserID], nil
}

func (m *mockAuth) OnAuthStateChange(listener auth.Listener) *auth.Subscription {
	return m.notifier.Subscribe(listener)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error {
	return m.err
}

// --- テスト用ルーター ---

type testEnv struct {
	router   http.Handler
	auth     *mockAuth
	readings *memReadings
	meetings *memMeetings
	health   *mockHealthChecker
	registry *prometheus.Registry
	limiter  *middleware.RateLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	renderer, err := view.NewRenderer("Literary Society of Friends", time.UTC, security.NewSanitizer())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	env := &testEnv{
		auth:     newMockAuth(),
		readings: &memReadings{},
		meetings: &memMeetings{rooms: map[string]string{"club-1": "https://meet.example.com/club-1"}},
		health:   &mockHealthChecker{},
		registry: prometheus.NewRegistry(),
		limiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			GeneralRate:     rate.Limit(100),
			GeneralBurst:    1000,
			SignInRate:      rate.Limit(1.0 / 60.0),
			SignInBurst:     3,
			CleanupInterval: time.Hour,
		}),
	}
	t.Cleanup(env.limiter.Stop)

	collector := metrics.NewCollector(env.registry)
	env.router = NewRouter(&RouterDeps{
		Logger:        logger,
		Authenticator: env.auth,
		RateLimiter:   env.limiter,
		Renderer:      renderer,
		Home:          home.NewService(env.meetings, env.readings, collector, logger),
		Workspaces:    admin.NewService(env.readings, env.meetings, security.NewURLGuard(), collector, time.UTC, logger),
		AuthService:   env.auth,
		AuthConfig:    AuthHandlerConfig{SessionMaxAge: 3600},
		AuthEvents:    env.auth,
		HealthChecker: env.health,
		Metrics:       collector,
		Gatherer:      env.registry,
	})
	return env
}

// do はトークン（空なら未サインイン）付きでリクエストを実行する。
func (e *testEnv) do(method, target, token string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		form.Set(middleware.CSRFFormField, testCSRFToken)
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: testCSRFToken})
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookieName, Value: token})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
