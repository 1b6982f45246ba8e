package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/bookclub/internal/model"
)

// PostgresReadingRepo はPostgreSQLを使用した文献リポジトリ。
// ReadingRepositoryとSupplementRepositoryの両方を実装する。
type PostgresReadingRepo struct {
	db *sql.DB
}

// NewPostgresReadingRepo はPostgresReadingRepoを生成する。
func NewPostgresReadingRepo(db *sql.DB) *PostgresReadingRepo {
	return &PostgresReadingRepo{db: db}
}

const readingColumns = `id, club_id, title, reading_desc, supplement_feed_url, supplements,
		supplements_fetched_at, supplement_error, created_at`

// scanReading は1行分の文献を読み取る。supplementsはJSONBからデコードする。
func scanReading(row rowScanner) (*model.Reading, error) {
	reading := &model.Reading{}
	var (
		feedURL   sql.NullString
		raw       []byte
		fetchedAt sql.NullTime
		errMsg    sql.NullString
	)
	if err := row.Scan(
		&reading.ID, &reading.ClubID, &reading.Title, &reading.Description,
		&feedURL, &raw, &fetchedAt, &errMsg, &reading.CreatedAt,
	); err != nil {
		return nil, err
	}

	reading.SupplementFeedURL = nullStringValue(feedURL)
	reading.SupplementsFetchedAt = nullTimePtr(fetchedAt)
	reading.SupplementError = nullStringValue(errMsg)

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reading.Supplements); err != nil {
			return nil, fmt.Errorf("failed to decode supplements of reading %d: %w", reading.ID, err)
		}
	}
	return reading, nil
}

func (r *PostgresReadingRepo) queryReadings(ctx context.Context, query string, args ...any) ([]*model.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*model.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// ListByClub はクラブの文献を作成日時の降順で返す。
func (r *PostgresReadingRepo) ListByClub(ctx context.Context, clubID string) ([]*model.Reading, error) {
	readings, err := r.queryReadings(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE club_id = $1
		 ORDER BY created_at DESC, id DESC`,
		clubID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

// ListByIDs はクラブの文献のうち指定IDに含まれるものを返す。
// idsが空の場合はクエリを発行しない。
func (r *PostgresReadingRepo) ListByIDs(ctx context.Context, clubID string, ids []int64) ([]*model.Reading, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	readings, err := r.queryReadings(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE club_id = $1 AND id = ANY($2)`,
		clubID, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings by ids: %w", err)
	}
	return readings, nil
}

// FindByID は指定IDの文献を取得する。見つからない場合はnilを返す。
func (r *PostgresReadingRepo) FindByID(ctx context.Context, clubID string, id int64) (*model.Reading, error) {
	reading, err := scanReading(r.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE id = $1 AND club_id = $2`,
		id, clubID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reading: %w", err)
	}
	return reading, nil
}

// Create は文献を作成し、採番されたIDと作成日時をreadingに設定する。
func (r *PostgresReadingRepo) Create(ctx context.Context, reading *model.Reading) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO readings (club_id, title, reading_desc, supplement_feed_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		reading.ClubID, reading.Title, reading.Description, nullString(reading.SupplementFeedURL),
	).Scan(&reading.ID, &reading.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reading: %w", err)
	}
	return nil
}

// Update は文献のタイトル、説明、補足資料URLを更新し、更新後の行をreadingに反映する。
// 補足資料URLが変わった場合は次回のワーカー実行で再取得されるよう取得日時をリセットする。
func (r *PostgresReadingRepo) Update(ctx context.Context, reading *model.Reading) error {
	updated, err := scanReading(r.db.QueryRowContext(ctx,
		`UPDATE readings
		 SET title = $3,
		     reading_desc = $4,
		     supplements_fetched_at = CASE
		         WHEN supplement_feed_url IS DISTINCT FROM $5 THEN NULL
		         ELSE supplements_fetched_at
		     END,
		     supplement_feed_url = $5
		 WHERE id = $1 AND club_id = $2
		 RETURNING `+readingColumns,
		reading.ID, reading.ClubID, reading.Title, reading.Description, nullString(reading.SupplementFeedURL),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewReadingNotFoundError(reading.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update reading: %w", err)
	}
	*reading = *updated
	return nil
}

// Delete は文献を削除する。関連する集会はCASCADE削除される。
func (r *PostgresReadingRepo) Delete(ctx context.Context, clubID string, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM readings WHERE id = $1 AND club_id = $2`, id, clubID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewReadingNotFoundError(id)
	}
	return nil
}

// ListDueForSupplementRefresh は補足資料の再取得が必要な文献を最大limit件返す。
// 未取得の文献を優先し、次に取得日時が古い順に返す。
func (r *PostgresReadingRepo) ListDueForSupplementRefresh(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Reading, error) {
	readings, err := r.queryReadings(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE supplement_feed_url IS NOT NULL AND supplement_feed_url <> ''
		   AND (supplements_fetched_at IS NULL OR supplements_fetched_at < $1)
		 ORDER BY supplements_fetched_at ASC NULLS FIRST
		 LIMIT $2`,
		staleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings due for supplement refresh: %w", err)
	}
	return readings, nil
}

// SaveSupplements は取得した補足資料を保存し、エラーメッセージをクリアする。
func (r *PostgresReadingRepo) SaveSupplements(ctx context.Context, readingID int64, supplements []model.Supplement, fetchedAt time.Time) error {
	if supplements == nil {
		supplements = []model.Supplement{}
	}
	raw, err := json.Marshal(supplements)
	if err != nil {
		return fmt.Errorf("failed to encode supplements: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE readings
		 SET supplements = $2, supplements_fetched_at = $3, supplement_error = NULL
		 WHERE id = $1`,
		readingID, raw, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save supplements: %w", err)
	}
	return nil
}

// RecordSupplementError は取得失敗を記録する。既存の補足資料は保持する。
func (r *PostgresReadingRepo) RecordSupplementError(ctx context.Context, readingID int64, message string, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE readings
		 SET supplement_error = $2, supplements_fetched_at = $3
		 WHERE id = $1`,
		readingID, message, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record supplement error: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ ReadingRepository    = (*PostgresReadingRepo)(nil)
	_ SupplementRepository = (*PostgresReadingRepo)(nil)
)
