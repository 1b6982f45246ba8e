package supplement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/bookclub/internal/metrics"
	"github.com/hitoshi/bookclub/internal/model"
)

// mockSupplementRepo はSupplementRepositoryのテスト用モック。
type mockSupplementRepo struct {
	mu sync.Mutex

	listDueFn func(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Reading, error)
	saveErr   error

	saved  map[int64][]model.Supplement
	errors map[int64]string
	times  map[int64]time.Time
}

func newMockSupplementRepo() *mockSupplementRepo {
	return &mockSupplementRepo{
		saved:  map[int64][]model.Supplement{},
		errors: map[int64]string{},
		times:  map[int64]time.Time{},
	}
}

func (m *mockSupplementRepo) ListDueForSupplementRefresh(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Reading, error) {
	if m.listDueFn != nil {
		return m.listDueFn(ctx, staleBefore, limit)
	}
	return nil, nil
}

func (m *mockSupplementRepo) SaveSupplements(_ context.Context, readingID int64, supplements []model.Supplement, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[readingID] = supplements
	m.times[readingID] = fetchedAt
	return nil
}

func (m *mockSupplementRepo) RecordSupplementError(_ context.Context, readingID int64, message string, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[readingID] = message
	m.times[readingID] = fetchedAt
	return nil
}

// mockFetcher はSupplementFetcherのテスト用モック。
type mockFetcher struct {
	fetchFn func(ctx context.Context, feedURL string) ([]model.Supplement, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, feedURL string) ([]model.Supplement, error) {
	return m.fetchFn(ctx, feedURL)
}

// mockRecorder はRecorderのテスト用モック。
type mockRecorder struct {
	mu        sync.Mutex
	results   map[string]int
	latencies int
	stored    int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{results: map[string]int{}}
}

func (m *mockRecorder) RecordSupplementFetch(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result]++
}

func (m *mockRecorder) RecordSupplementLatency(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *mockRecorder) RecordSupplementsStored(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored += count
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(repo *mockSupplementRepo, fetcher SupplementFetcher, recorder Recorder, buf *bytes.Buffer, config SchedulerConfig) *Scheduler {
	s := NewScheduler(repo, fetcher, recorder, newTestLogger(buf), config)
	s.now = func() time.Time { return fixedNow }
	return s
}

func readings(ids ...int64) []*model.Reading {
	out := make([]*model.Reading, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Reading{ID: id, SupplementFeedURL: "https://example.com/feed/" + strconv.FormatInt(id, 10)})
	}
	return out
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(newMockSupplementRepo(), &mockFetcher{}, nil, nil, SchedulerConfig{})
	if s.config.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", s.config.MaxConcurrency)
	}
	if s.config.TTL != 6*time.Hour {
		t.Errorf("TTL = %v, want 6h", s.config.TTL)
	}
	if s.config.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", s.config.BatchSize)
	}
}

func TestScheduler_RunOnce_QueriesWithTTLAndBatch(t *testing.T) {
	repo := newMockSupplementRepo()
	var gotStale time.Time
	var gotLimit int
	repo.listDueFn = func(_ context.Context, staleBefore time.Time, limit int) ([]*model.Reading, error) {
		gotStale, gotLimit = staleBefore, limit
		return nil, nil
	}

	s := newTestScheduler(repo, &mockFetcher{}, nil, nil, SchedulerConfig{TTL: 2 * time.Hour, BatchSize: 7})
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	if want := fixedNow.Add(-2 * time.Hour); !gotStale.Equal(want) {
		t.Errorf("staleBefore = %v, want %v", gotStale, want)
	}
	if gotLimit != 7 {
		t.Errorf("limit = %d, want 7", gotLimit)
	}
}

func TestScheduler_RunOnce_SavesAndRecordsErrors(t *testing.T) {
	repo := newMockSupplementRepo()
	repo.listDueFn = func(context.Context, time.Time, int) ([]*model.Reading, error) {
		return readings(1, 2, 3), nil
	}
	fetcher := &mockFetcher{fetchFn: func(_ context.Context, feedURL string) ([]model.Supplement, error) {
		switch {
		case strings.HasSuffix(feedURL, "/2"):
			return nil, model.NewFetchFailedError("unexpected HTTP status 500")
		case strings.HasSuffix(feedURL, "/3"):
			return nil, model.NewParseFailedError()
		}
		return []model.Supplement{
			{Title: "a", Link: "https://example.com/a"},
			{Title: "b", Link: "https://example.com/b"},
		}, nil
	}}
	recorder := newMockRecorder()

	s := newTestScheduler(repo, fetcher, recorder, nil, SchedulerConfig{MaxConcurrency: 2})
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("個別の失敗でRunOnceは失敗しないべき: %v", err)
	}

	if len(repo.saved[1]) != 2 {
		t.Errorf("文献1の補足資料数 = %d, want 2", len(repo.saved[1]))
	}
	if !repo.times[1].Equal(fixedNow) {
		t.Errorf("取得日時 = %v, want %v", repo.times[1], fixedNow)
	}
	if _, ok := repo.saved[2]; ok {
		t.Error("失敗した文献の補足資料は上書きされるべきでない")
	}
	if repo.errors[2] != "Failed to fetch supplements: unexpected HTTP status 500" {
		t.Errorf("文献2のエラー = %q", repo.errors[2])
	}
	if repo.errors[3] != "Failed to parse the supplement feed." {
		t.Errorf("文献3のエラー = %q", repo.errors[3])
	}

	if recorder.results[metrics.ResultSuccess] != 1 ||
		recorder.results[metrics.ResultFailure] != 1 ||
		recorder.results[metrics.ResultParseFailure] != 1 {
		t.Errorf("結果メトリクス = %v", recorder.results)
	}
	if recorder.latencies != 3 {
		t.Errorf("レイテンシ記録数 = %d, want 3", recorder.latencies)
	}
	if recorder.stored != 2 {
		t.Errorf("保存件数 = %d, want 2", recorder.stored)
	}
}

func TestScheduler_RunOnce_RespectsMaxConcurrency(t *testing.T) {
	repo := newMockSupplementRepo()
	repo.listDueFn = func(context.Context, time.Time, int) ([]*model.Reading, error) {
		return readings(1, 2, 3, 4, 5, 6), nil
	}

	var running, peak int32
	fetcher := &mockFetcher{fetchFn: func(context.Context, string) ([]model.Supplement, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}}

	s := newTestScheduler(repo, fetcher, nil, nil, SchedulerConfig{MaxConcurrency: 2})
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("同時実行数 = %d, want <= 2", got)
	}
	if len(repo.saved) != 6 {
		t.Errorf("保存された文献数 = %d, want 6", len(repo.saved))
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	repo := newMockSupplementRepo()
	repo.listDueFn = func(context.Context, time.Time, int) ([]*model.Reading, error) {
		return nil, errors.New("connection refused")
	}

	s := newTestScheduler(repo, &mockFetcher{}, nil, nil, SchedulerConfig{})
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("一覧取得の失敗はエラーを返すべき")
	}
}

func TestScheduler_Refresh_SaveErrorCountsAsFailure(t *testing.T) {
	repo := newMockSupplementRepo()
	repo.saveErr = errors.New("write failed")
	recorder := newMockRecorder()
	fetcher := &mockFetcher{fetchFn: func(context.Context, string) ([]model.Supplement, error) {
		return []model.Supplement{{Title: "a", Link: "https://example.com/a"}}, nil
	}}

	s := newTestScheduler(repo, fetcher, recorder, nil, SchedulerConfig{})
	if err := s.Refresh(context.Background(), readings(1)[0]); err == nil {
		t.Fatal("保存の失敗はエラーを返すべき")
	}
	if recorder.results[metrics.ResultFailure] != 1 || recorder.stored != 0 {
		t.Errorf("results = %v, stored = %d", recorder.results, recorder.stored)
	}
}

func TestScheduler_Refresh_CanceledContextIsNotRecorded(t *testing.T) {
	repo := newMockSupplementRepo()
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &mockFetcher{fetchFn: func(ctx context.Context, _ string) ([]model.Supplement, error) {
		cancel()
		return nil, model.NewFetchFailedError(ctx.Err().Error())
	}}

	s := newTestScheduler(repo, fetcher, nil, nil, SchedulerConfig{})
	if err := s.Refresh(ctx, readings(1)[0]); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, ok := repo.errors[1]; ok {
		t.Error("キャンセルによる失敗は文献に記録されるべきでない")
	}
}

func TestScheduler_Start_StopsOnCancel(t *testing.T) {
	repo := newMockSupplementRepo()
	var cycles int32
	repo.listDueFn = func(context.Context, time.Time, int) ([]*model.Reading, error) {
		atomic.AddInt32(&cycles, 1)
		return nil, nil
	}

	var buf bytes.Buffer
	s := newTestScheduler(repo, &mockFetcher{}, nil, &buf, SchedulerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start はキャンセル後に終了するべき")
	}

	if atomic.LoadInt32(&cycles) < 2 {
		t.Errorf("サイクル数 = %d, want >= 2", cycles)
	}

	var sawStop bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == "supplement scheduler stopped" {
			sawStop = true
		}
	}
	if !sawStop {
		t.Error("停止ログが出力されるべき")
	}
}
