// Package supplement は文献の補足資料フィードをバックグラウンドで取り込む。
// フィード検出、フェッチャー、スケジューラを含む。
package supplement

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// FeedType はフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	FeedTypeRSS  FeedType = "rss"
	FeedTypeAtom FeedType = "atom"
)

// Candidate はHTMLのlink要素から検出されたフィード候補。
type Candidate struct {
	URL      string
	FeedType FeedType
	Title    string
}

var feedMediaTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

var xmlMediaTypes = []string{
	"text/xml",
	"application/xml",
}

// sniffSize はXMLのルート要素を判定するために検査する先頭バイト数。
const sniffSize = 4096

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// IsDirectFeed はContent-Typeとボディからレスポンスがフィードそのものかを判定する。
// 汎用XMLの場合はルート要素を確認する。
func IsDirectFeed(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)
	for _, mt := range feedMediaTypes {
		if mediaType == mt {
			return true
		}
	}

	isXML := false
	for _, mt := range xmlMediaTypes {
		if mediaType == mt {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}
	return looksLikeFeed(body)
}

// IsHTML はContent-TypeがHTMLかを判定する。
func IsHTML(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

func looksLikeFeed(body []byte) bool {
	n := len(body)
	if n > sniffSize {
		n = sniffSize
	}
	prefix := strings.ToLower(string(body[:n]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// ParseFeedLinks はHTMLのhead内にある rel="alternate" のRSS/Atomリンクを返す。
// 相対URLはbaseURLで解決する。
func ParseFeedLinks(body []byte, baseURL string) []Candidate {
	var candidates []Candidate

	base, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return candidates
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}

			var feedType FeedType
			switch linkType {
			case "application/rss+xml":
				feedType = FeedTypeRSS
			case "application/atom+xml":
				feedType = FeedTypeAtom
			default:
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			candidates = append(candidates, Candidate{
				URL:      base.ResolveReference(ref).String(),
				FeedType: feedType,
				Title:    title,
			})

		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "head" {
				return candidates
			}
		}
	}
}

// SelectBest は候補から取り込むフィードを1件選ぶ。
// 優先順位: 同一ホスト > Atom > 先頭
func SelectBest(candidates []Candidate, pageURL string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	pageHost := hostOf(pageURL)
	bestIdx, bestScore := 0, -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == pageHost {
			score += 100
		}
		if c.FeedType == FeedTypeAtom {
			score += 10
		}
		// 同点は先頭を残す
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return &candidates[bestIdx]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
