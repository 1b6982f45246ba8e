package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は表示前のHTMLを無害化する。
type Sanitizer struct {
	markdown *bluemonday.Policy
	text     *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		markdown: newMarkdownPolicy(),
		text:     bluemonday.StrictPolicy(),
	}
}

// newMarkdownPolicy は文献の説明文（Markdownのレンダリング結果）向けのポリシーを返す。
func newMarkdownPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return p
}

// SanitizeHTML はMarkdownから生成したHTMLを許可リストの要素だけに絞り込む。
func (s *Sanitizer) SanitizeHTML(rawHTML string) string {
	return s.markdown.Sanitize(rawHTML)
}

// StripTags はすべてのタグを除去したテキストを返す。
// 補足資料のタイトルなど外部由来の短い文字列に使う。
func (s *Sanitizer) StripTags(raw string) string {
	return s.text.Sanitize(raw)
}
