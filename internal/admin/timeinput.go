package admin

import (
	"fmt"
	"strings"
	"time"
)

// localInputLayout はdatetime-local入力欄の値の書式。
const localInputLayout = "2006-01-02T15:04"

// localInputLayouts はParseLocalInputが受け付ける書式。秒付きの値はブラウザにより送られることがある。
var localInputLayouts = []string{
	localInputLayout,
	"2006-01-02T15:04:05",
}

// FormatLocalInput は時刻をクラブのタイムゾーンの編集用文字列に変換する。
func FormatLocalInput(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(localInputLayout)
}

// ParseLocalInput は編集用文字列をクラブのタイムゾーンの時刻として解釈する。
// 精度は分単位で、秒以下は切り捨てる。
func ParseLocalInput(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localInputLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.Truncate(time.Minute), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: expected YYYY-MM-DDTHH:MM", s)
}
