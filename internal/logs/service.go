package logs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetdiag/log-ingest/internal/clickhouse"
	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Query describes a filtered, paginated log search.
type Query struct {
	Vehicle   string
	Code      string
	Level     string
	Search    string // substring match on message
	From      time.Time
	To        time.Time
	FileID    uint
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// sortColumns whitelists user-supplied sort fields.
var sortColumns = map[string]string{
	"timestamp":  "timestamp",
	"vehicle_id": "vehicle_id",
	"level":      "level",
	"code":       "code",
}

// Service answers read queries against the log store.
type Service struct {
	client *clickhouse.Client
}

// NewService creates a query service over an established client.
func NewService(client *clickhouse.Client) *Service {
	return &Service{client: client}
}

// buildFilter renders the WHERE clause for q. FINAL collapses rows the
// ReplacingMergeTree has not merged yet, so replayed duplicates never show.
func buildFilter(q Query) (string, []any) {
	var conds []string
	var args []any

	if q.Vehicle != "" {
		conds = append(conds, "vehicle_id = ?")
		args = append(args, q.Vehicle)
	}
	if q.Code != "" {
		conds = append(conds, "code = ?")
		args = append(args, q.Code)
	}
	if q.Level != "" {
		conds = append(conds, "level = ?")
		args = append(args, strings.ToUpper(q.Level))
	}
	if q.Search != "" {
		conds = append(conds, "positionCaseInsensitive(message, ?) > 0")
		args = append(args, q.Search)
	}
	if !q.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, q.To)
	}
	if q.FileID != 0 {
		conds = append(conds, "file_id = ?")
		args = append(args, uint64(q.FileID))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Find returns matching log records, newest first by default.
func (s *Service) Find(ctx context.Context, q Query) ([]domain.LogRecord, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	if q.Page < 1 {
		q.Page = 1
	}

	sortCol, ok := sortColumns[q.SortBy]
	if !ok {
		sortCol = "timestamp"
	}
	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}

	where, args := buildFilter(q)
	query := fmt.Sprintf(`
		SELECT file_id, vehicle_id, timestamp, level, code, message
		FROM vehicle_logs FINAL%s
		ORDER BY %s %s
		LIMIT ? OFFSET ?
	`, where, sortCol, order)
	args = append(args, q.Limit, (q.Page-1)*q.Limit)

	rows, err := s.client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var records []domain.LogRecord
	for rows.Next() {
		var (
			fileID uint64
			rec    domain.LogRecord
			level  string
		)
		if err := rows.Scan(&fileID, &rec.VehicleID, &rec.Timestamp, &level, &rec.Code, &rec.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		rec.FileID = uint(fileID)
		rec.Level = domain.Level(level)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of records matching the query.
func (s *Service) Count(ctx context.Context, q Query) (uint64, error) {
	where, args := buildFilter(q)
	query := "SELECT count() FROM vehicle_logs FINAL" + where

	var count uint64
	if err := s.client.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}

// CountByFile returns the number of ingested records for one file.
func (s *Service) CountByFile(ctx context.Context, fileID uint) (uint64, error) {
	return s.Count(ctx, Query{FileID: fileID})
}

// DeleteByFile removes all records ingested from one file. Mutation-based,
// so deletion is eventually applied in the background.
func (s *Service) DeleteByFile(ctx context.Context, fileID uint) error {
	err := s.client.Exec(ctx,
		"ALTER TABLE vehicle_logs DELETE WHERE file_id = ?",
		uint64(fileID),
	)
	if err != nil {
		return fmt.Errorf("failed to delete logs for file %d: %w", fileID, err)
	}
	return nil
}
