package home

import "time"

// calendarEventDuration はカレンダー上の集会の表示時間。
const calendarEventDuration = time.Hour

// CalendarEvent はカレンダーウィジェットに渡す集会イベント。
type CalendarEvent struct {
	ID    int64     `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	URL   string    `json:"url,omitempty"`
}

// CalendarEvents は今後の集会をカレンダーイベントに変換する。
// 文献が読み込まれていない集会は範囲のみをタイトルにする。
func CalendarEvents(d *Dashboard) []CalendarEvent {
	events := make([]CalendarEvent, 0, len(d.Upcoming))
	for _, m := range d.Upcoming {
		title := m.Section
		if reading, ok := d.Readings[m.ReadingID]; ok {
			title = reading.Title + ": " + m.Section
		}
		events = append(events, CalendarEvent{
			ID:    m.ID,
			Title: title,
			Start: m.ScheduledFor,
			End:   m.ScheduledFor.Add(calendarEventDuration),
			URL:   m.MeetingRoom,
		})
	}
	return events
}
