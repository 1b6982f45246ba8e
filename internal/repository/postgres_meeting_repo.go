package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bookclub/internal/model"
)

// PostgresMeetingRepo はPostgreSQLを使用した集会リポジトリ。
type PostgresMeetingRepo struct {
	db *sql.DB
}

// NewPostgresMeetingRepo はPostgresMeetingRepoを生成する。
func NewPostgresMeetingRepo(db *sql.DB) *PostgresMeetingRepo {
	return &PostgresMeetingRepo{db: db}
}

const meetingColumns = `id, club_id, reading_id, scheduled_for, section, created_at`

func scanMeeting(row rowScanner) (*model.Meeting, error) {
	m := &model.Meeting{}
	if err := row.Scan(&m.ID, &m.ClubID, &m.ReadingID, &m.ScheduledFor, &m.Section, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByClub はクラブの集会を開催日時の昇順で返す。
func (r *PostgresMeetingRepo) ListByClub(ctx context.Context, clubID string) ([]*model.Meeting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+meetingColumns+`
		 FROM meetings
		 WHERE club_id = $1
		 ORDER BY scheduled_for ASC, id ASC`,
		clubID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meetings: %w", err)
	}
	return meetings, nil
}

// ListByClubWithRoom はクラブの会議室リンクを結合した集会を開催日時の昇順で返す。
func (r *PostgresMeetingRepo) ListByClubWithRoom(ctx context.Context, clubID string) ([]model.MeetingWithRoom, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.club_id, m.reading_id, m.scheduled_for, m.section, m.created_at, c.meeting_room
		 FROM meetings m
		 INNER JOIN clubs c ON c.id = m.club_id
		 WHERE m.club_id = $1
		 ORDER BY m.scheduled_for ASC, m.id ASC`,
		clubID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings with room: %w", err)
	}
	defer rows.Close()

	var meetings []model.MeetingWithRoom
	for rows.Next() {
		var mr model.MeetingWithRoom
		if err := rows.Scan(
			&mr.ID, &mr.ClubID, &mr.ReadingID, &mr.ScheduledFor, &mr.Section, &mr.CreatedAt, &mr.MeetingRoom,
		); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meetings: %w", err)
	}
	return meetings, nil
}

// Create は集会を作成し、採番されたIDと作成日時をmeetingに設定する。
func (r *PostgresMeetingRepo) Create(ctx context.Context, meeting *model.Meeting) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO meetings (club_id, reading_id, scheduled_for, section)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		meeting.ClubID, meeting.ReadingID, meeting.ScheduledFor, meeting.Section,
	).Scan(&meeting.ID, &meeting.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	return nil
}

// Update は集会の文献、開催日時、範囲を更新し、更新後の行をmeetingに反映する。
func (r *PostgresMeetingRepo) Update(ctx context.Context, meeting *model.Meeting) error {
	updated, err := scanMeeting(r.db.QueryRowContext(ctx,
		`UPDATE meetings
		 SET reading_id = $3, scheduled_for = $4, section = $5
		 WHERE id = $1 AND club_id = $2
		 RETURNING `+meetingColumns,
		meeting.ID, meeting.ClubID, meeting.ReadingID, meeting.ScheduledFor, meeting.Section,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewMeetingNotFoundError(meeting.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	*meeting = *updated
	return nil
}

// Delete は集会を削除する。
func (r *PostgresMeetingRepo) Delete(ctx context.Context, clubID string, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM meetings WHERE id = $1 AND club_id = $2`, id, clubID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete meeting: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewMeetingNotFoundError(id)
	}
	return nil
}

// compile-time interface check
var _ MeetingRepository = (*PostgresMeetingRepo)(nil)
