package supplement

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/bookclub/internal/model"
)

const userAgent = "Bookclub/1.0 Supplement Fetcher"

// URLValidator は取得前にURLを検証するインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// TitleSanitizer は補足資料のタイトルからタグを除去するインターフェース。
type TitleSanitizer interface {
	StripTags(raw string) string
}

// Fetcher は補足資料フィードのHTTP取得とパースを行う。
// HTMLページが指定された場合はlink要素で告知されたフィードを1回だけ辿る。
type Fetcher struct {
	client      *http.Client
	validator   URLValidator
	sanitizer   TitleSanitizer
	logger      *slog.Logger
	maxBodySize int64
	maxEntries  int
}

// NewFetcher はFetcherを生成する。
// clientにはSSRF対策済みのクライアント（security.URLGuard.NewSafeClient）を渡す。
func NewFetcher(
	client *http.Client,
	validator URLValidator,
	sanitizer TitleSanitizer,
	logger *slog.Logger,
	maxBodySize int64,
	maxEntries int,
) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries <= 0 {
		maxEntries = 5
	}
	return &Fetcher{
		client:      client,
		validator:   validator,
		sanitizer:   sanitizer,
		logger:      logger,
		maxBodySize: maxBodySize,
		maxEntries:  maxEntries,
	}
}

// Fetch はfeedURLから補足資料を取得する。
// 1. URLを検証
// 2. HTTP GET
// 3. HTMLの場合はフィードリンクを検出して取り直す
// 4. gofeedでパースし、最大maxEntries件に変換
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]model.Supplement, error) {
	body, contentType, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if IsHTML(contentType) && !IsDirectFeed(contentType, body) {
		best := SelectBest(ParseFeedLinks(body, feedURL), feedURL)
		if best == nil {
			return nil, model.NewFeedNotDetectedError(feedURL)
		}
		f.logger.Debug("supplement feed discovered",
			slog.String("page_url", feedURL),
			slog.String("feed_url", best.URL),
		)
		body, _, err = f.get(ctx, best.URL)
		if err != nil {
			return nil, err
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		f.logger.Warn("supplement feed parse failed",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewParseFailedError()
	}

	return f.convert(parsed.Items), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.validator != nil {
		if err := f.validator.ValidateURL(rawURL); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode))
	}

	reader := io.Reader(resp.Body)
	if f.maxBodySize > 0 {
		reader = io.LimitReader(resp.Body, f.maxBodySize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("failed to read response body: %v", err))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// convert はフィードの記事を補足資料に変換する。
// http(s)以外のリンクとリンクのない記事は除外する。
func (f *Fetcher) convert(items []*gofeed.Item) []model.Supplement {
	supplements := make([]model.Supplement, 0, f.maxEntries)
	for _, item := range items {
		if len(supplements) >= f.maxEntries {
			break
		}
		if item == nil || !isWebLink(item.Link) {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if f.sanitizer != nil {
			title = strings.TrimSpace(f.sanitizer.StripTags(title))
		}
		if title == "" {
			title = item.Link
		}

		s := model.Supplement{Title: title, Link: item.Link}
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			s.PublishedAt = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			s.PublishedAt = &t
		}
		supplements = append(supplements, s)
	}
	return supplements
}

func isWebLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
