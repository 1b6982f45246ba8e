package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error {
	return nil
}

func (m *mockUserRepo) UpdatePasswordHash(_ context.Context, _, _ string) error {
	return nil
}

type mockMemberRepo struct {
	findFirstByUserIDFn func(ctx context.Context, userID string) (*model.Member, error)
}

func (m *mockMemberRepo) FindFirstByUserID(ctx context.Context, userID string) (*model.Member, error) {
	if m.findFirstByUserIDFn != nil {
		return m.findFirstByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockMemberRepo) ListByClubID(_ context.Context, _ string, _ int) ([]*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) Upsert(_ context.Context, _ *model.Member) error {
	return nil
}

// mockSessionRepo は作成されたセッションをメモリに保持する。
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	createFn func(ctx context.Context, session *model.Session) error
	deleted  []string
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, session); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id], nil
}

func (m *mockSessionRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.MemberRepository = (*mockMemberRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

// --- テストヘルパー ---

const testPassword = "correct horse battery"

var (
	testHashOnce sync.Once
	testHash     string
)

// passwordHash はテスト用パスワードのハッシュを一度だけ計算して返す。
func passwordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		h, err := HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		testHash = h
	})
	return testHash
}

func newTestService(t *testing.T, member *model.Member) (*Service, *mockSessionRepo) {
	t.Helper()
	user := &model.User{ID: "user-1", Email: "reader@example.com", PasswordHash: passwordHash(t)}

	userRepo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, nil
		},
	}
	memberRepo := &mockMemberRepo{
		findFirstByUserIDFn: func(_ context.Context, _ string) (*model.Member, error) {
			return member, nil
		},
	}
	sessionRepo := newMockSessionRepo()

	svc := NewService(userRepo, memberRepo, sessionRepo, ServiceConfig{
		SessionSecret: "test-secret",
		SessionMaxAge: 3600,
	})
	return svc, sessionRepo
}

// --- テスト ---

func TestSignInWithPassword_IssuesTokenWithClubClaim(t *testing.T) {
	svc, sessionRepo := newTestService(t, &model.Member{UserID: "user-1", ClubID: "club-1", Role: model.RoleAdmin})

	session, err := svc.SignInWithPassword(context.Background(), "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	if session.ClubID != "club-1" {
		t.Errorf("ClubID = %q, want %q", session.ClubID, "club-1")
	}
	if session.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", session.Role, model.RoleAdmin)
	}
	if session.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}
	if _, ok := sessionRepo.sessions[session.ID]; !ok {
		t.Error("expected session to be persisted")
	}

	claims, err := svc.tokens.Verify(session.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.ClubID != "club-1" {
		t.Errorf("claims.ClubID = %q, want %q", claims.ClubID, "club-1")
	}
	if claims.Subject != "user-1" {
		t.Errorf("claims.Subject = %q, want %q", claims.Subject, "user-1")
	}
}

func TestSignInWithPassword_NoMembership_SignsInWithoutClub(t *testing.T) {
	svc, _ := newTestService(t, nil)

	session, err := svc.SignInWithPassword(context.Background(), "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if session.HasClub() {
		t.Errorf("expected no club, got %q", session.ClubID)
	}
	if session.Role != model.RoleMember {
		t.Errorf("Role = %q, want %q", session.Role, model.RoleMember)
	}
}

func TestSignInWithPassword_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	svc, sessionRepo := newTestService(t, nil)

	_, err := svc.SignInWithPassword(context.Background(), "reader@example.com", "wrong password")
	if !model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Fatalf("error = %v, want INVALID_CREDENTIALS", err)
	}
	if len(sessionRepo.sessions) != 0 {
		t.Error("no session should be created on failed sign-in")
	}
}

func TestSignInWithPassword_UnknownEmail_ReturnsInvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.SignInWithPassword(context.Background(), "nobody@example.com", testPassword)
	if !model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Fatalf("error = %v, want INVALID_CREDENTIALS", err)
	}
}

func TestSignInWithPassword_SessionSaveError_ReturnsError(t *testing.T) {
	svc, sessionRepo := newTestService(t, nil)
	sessionRepo.createFn = func(_ context.Context, _ *model.Session) error {
		return errors.New("db down")
	}

	_, err := svc.SignInWithPassword(context.Background(), "reader@example.com", testPassword)
	if err == nil {
		t.Fatal("expected error")
	}
	if model.IsCode(err, model.ErrCodeInvalidCredentials) {
		t.Error("storage failure should not be reported as invalid credentials")
	}
}

func TestAuthenticate_ValidToken_ReturnsSession(t *testing.T) {
	svc, _ := newTestService(t, &model.Member{ClubID: "club-1", Role: model.RoleMember})
	ctx := context.Background()

	signedIn, err := svc.SignInWithPassword(ctx, "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	session, err := svc.Authenticate(ctx, signedIn.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if session.ID != signedIn.ID {
		t.Errorf("session ID = %q, want %q", session.ID, signedIn.ID)
	}
	if session.ClubID != "club-1" {
		t.Errorf("ClubID = %q, want %q", session.ClubID, "club-1")
	}
	if session.AccessToken != signedIn.AccessToken {
		t.Error("expected access token to be carried on the session")
	}
}

func TestAuthenticate_RevokedSession_ReturnsUnauthorized(t *testing.T) {
	svc, sessionRepo := newTestService(t, nil)
	ctx := context.Background()

	signedIn, err := svc.SignInWithPassword(ctx, "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	delete(sessionRepo.sessions, signedIn.ID)

	_, err = svc.Authenticate(ctx, signedIn.AccessToken)
	if !model.IsCode(err, model.ErrCodeUnauthorized) {
		t.Fatalf("error = %v, want UNAUTHORIZED", err)
	}
}

func TestAuthenticate_EmptyOrGarbageToken_ReturnsUnauthorized(t *testing.T) {
	svc, _ := newTestService(t, nil)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.Authenticate(context.Background(), token)
		if !model.IsCode(err, model.ErrCodeUnauthorized) {
			t.Errorf("Authenticate(%q) error = %v, want UNAUTHORIZED", token, err)
		}
	}
}

func TestSignOut_DeletesSessionAndNotifies(t *testing.T) {
	svc, sessionRepo := newTestService(t, &model.Member{ClubID: "club-1", Role: model.RoleMember})
	ctx := context.Background()

	var events []Event
	var lastClub string
	sub := svc.OnAuthStateChange(func(event Event, session *model.Session) {
		events = append(events, event)
		lastClub = session.ClubID
	})
	defer sub.Unsubscribe()

	signedIn, err := svc.SignInWithPassword(ctx, "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if err := svc.SignOut(ctx, signedIn.AccessToken); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	if len(sessionRepo.deleted) != 1 || sessionRepo.deleted[0] != signedIn.ID {
		t.Errorf("deleted = %v, want [%s]", sessionRepo.deleted, signedIn.ID)
	}
	if len(events) != 2 || events[0] != EventSignedIn || events[1] != EventSignedOut {
		t.Errorf("events = %v, want [SIGNED_IN SIGNED_OUT]", events)
	}
	if lastClub != "club-1" {
		t.Errorf("signed-out session club = %q, want %q", lastClub, "club-1")
	}

	if _, err := svc.Authenticate(ctx, signedIn.AccessToken); err == nil {
		t.Error("token should not authenticate after sign-out")
	}
}

func TestSignOut_EmptyToken_ReturnsUnauthorized(t *testing.T) {
	svc, _ := newTestService(t, nil)

	err := svc.SignOut(context.Background(), "")
	if !model.IsCode(err, model.ErrCodeUnauthorized) {
		t.Fatalf("error = %v, want UNAUTHORIZED", err)
	}
}

func TestGetUser_ValidToken_ReturnsUser(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	signedIn, err := svc.SignInWithPassword(ctx, "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	user, err := svc.GetUser(ctx, signedIn.AccessToken)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Email != "reader@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "reader@example.com")
	}
}

func TestGetUser_ExpiredToken_ReturnsUnauthorized(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	signedIn, err := svc.SignInWithPassword(ctx, "reader@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	svc.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = svc.GetUser(ctx, signedIn.AccessToken)
	if !model.IsCode(err, model.ErrCodeUnauthorized) {
		t.Fatalf("error = %v, want UNAUTHORIZED", err)
	}
}
