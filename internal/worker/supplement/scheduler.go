package supplement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/bookclub/internal/metrics"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/repository"
)

// SupplementFetcher は補足資料の取得インターフェース。
type SupplementFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]model.Supplement, error)
}

// Recorder は取り込み結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordSupplementFetch(result string)
	RecordSupplementLatency(duration time.Duration)
	RecordSupplementsStored(count int)
}

// SchedulerConfig はスケジューラの設定。
type SchedulerConfig struct {
	// MaxConcurrency は同時に取得する文献数の上限。
	MaxConcurrency int
	// TTL は補足資料を再取得するまでの期間。
	TTL time.Duration
	// BatchSize は1サイクルで処理する文献数の上限。
	BatchSize int
}

// Scheduler は補足資料の定期取り込みと並列制御を行う。
type Scheduler struct {
	repo     repository.SupplementRepository
	fetcher  SupplementFetcher
	recorder Recorder
	logger   *slog.Logger
	config   SchedulerConfig
	now      func() time.Time
}

// NewScheduler はSchedulerを生成する。
// 0以下の設定値はデフォルト値（並列数4、TTL 6時間、バッチ100件）で補完する。
func NewScheduler(
	repo repository.SupplementRepository,
	fetcher SupplementFetcher,
	recorder Recorder,
	logger *slog.Logger,
	config SchedulerConfig,
) *Scheduler {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.TTL <= 0 {
		config.TTL = 6 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repo:     repo,
		fetcher:  fetcher,
		recorder: recorder,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Start は起動直後とinterval毎に取り込みサイクルを実行する。
// コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("supplement scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.config.MaxConcurrency),
	)

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supplement scheduler stopped")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("supplement cycle failed", slog.String("error", err.Error()))
	}
}

// RunOnce は再取得が必要な文献を1回取得し、semaphoreで並列数を制御しながら取り込む。
// 個々の文献の失敗はその文献に記録し、サイクル自体は失敗させない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()

	readings, err := s.repo.ListDueForSupplementRefresh(ctx, start.Add(-s.config.TTL), s.config.BatchSize)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		s.logger.Debug("no readings due for supplement refresh")
		return nil
	}

	s.logger.Info("supplement cycle started", slog.Int("reading_count", len(readings)))

	sem := make(chan struct{}, s.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, reading := range readings {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(r *model.Reading) {
			defer wg.Done()
			defer func() { <-sem }()
			_ = s.Refresh(ctx, r)
		}(reading)
	}
	wg.Wait()

	s.logger.Info("supplement cycle finished",
		slog.Int("reading_count", len(readings)),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return ctx.Err()
}

// Refresh は1件の文献の補足資料を取得して保存する。
// 取得に失敗した場合はエラーメッセージを記録し、既存の補足資料は残す。
func (s *Scheduler) Refresh(ctx context.Context, reading *model.Reading) error {
	start := s.now()
	supplements, err := s.fetcher.Fetch(ctx, reading.SupplementFeedURL)
	s.recordLatency(s.now().Sub(start))

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result := metrics.ResultFailure
		if model.IsCode(err, model.ErrCodeParseFailed) {
			result = metrics.ResultParseFailure
		}
		s.recordFetch(result)
		s.logger.Warn("supplement fetch failed",
			slog.Int64("reading_id", reading.ID),
			slog.String("feed_url", reading.SupplementFeedURL),
			slog.String("error", err.Error()),
		)
		if recErr := s.repo.RecordSupplementError(ctx, reading.ID, errorMessage(err), start); recErr != nil {
			s.logger.Error("failed to record supplement error",
				slog.Int64("reading_id", reading.ID),
				slog.String("error", recErr.Error()),
			)
		}
		return err
	}

	if err := s.repo.SaveSupplements(ctx, reading.ID, supplements, start); err != nil {
		s.recordFetch(metrics.ResultFailure)
		s.logger.Error("failed to save supplements",
			slog.Int64("reading_id", reading.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.recordFetch(metrics.ResultSuccess)
	s.recordStored(len(supplements))
	s.logger.Info("supplements refreshed",
		slog.Int64("reading_id", reading.ID),
		slog.Int("count", len(supplements)),
	)
	return nil
}

// errorMessage は画面に表示できる失敗理由を返す。
func errorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func (s *Scheduler) recordFetch(result string) {
	if s.recorder != nil {
		s.recorder.RecordSupplementFetch(result)
	}
}

func (s *Scheduler) recordLatency(d time.Duration) {
	if s.recorder != nil {
		s.recorder.RecordSupplementLatency(d)
	}
}

func (s *Scheduler) recordStored(n int) {
	if s.recorder != nil {
		s.recorder.RecordSupplementsStored(n)
	}
}
